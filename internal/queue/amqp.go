package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// AMQPBroker publishes and consumes envelopes on durable queues named after
// their topic.
type AMQPBroker struct {
	conn *amqp.Connection
	log  *zap.Logger

	mu       sync.Mutex // guards pubCh and declared
	pubCh    *amqp.Channel
	declared map[string]bool

	wg sync.WaitGroup
}

func DialAMQP(url string, log *zap.Logger) (*AMQPBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &AMQPBroker{
		conn:     conn,
		log:      log.Named("amqp"),
		pubCh:    ch,
		declared: make(map[string]bool),
	}, nil
}

func declare(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

func (b *AMQPBroker) Publish(ctx context.Context, topic string, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.declared[topic] {
		if err := declare(b.pubCh, topic); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", topic, err)
		}
		b.declared[topic] = true
	}
	return b.pubCh.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    env.EventID,
			Type:         string(env.Kind),
			Timestamp:    env.OccurredAt,
			Body:         body,
		},
	)
}

// Subscribe starts consuming topic until ctx is cancelled. Each delivery is
// handled on its own goroutine and acknowledged manually.
func (b *AMQPBroker) Subscribe(ctx context.Context, topic string, handler Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := declare(ch, topic); err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	b.log.Info("📥 consuming", zap.String("topic", topic))
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					b.log.Warn("delivery channel closed", zap.String("topic", topic))
					return
				}
				b.wg.Add(1)
				go func() {
					defer b.wg.Done()
					b.handle(context.WithoutCancel(ctx), topic, d, handler)
				}()
			}
		}
	}()
	return nil
}

func (b *AMQPBroker) handle(ctx context.Context, topic string, d amqp.Delivery, handler Handler) {
	var env Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		b.log.Warn("⚠️ invalid message, dropping", zap.String("topic", topic), zap.Error(err))
		_ = d.Ack(false)
		return
	}

	err := invoke(ctx, handler, env)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrHandlerPanic):
		// not requeued; redelivery would panic again
		b.log.Error("❌ handler panicked, rejecting", zap.String("topic", topic), zap.String("event_id", env.EventID), zap.Error(err))
		_ = d.Nack(false, false)
	case errors.Is(err, ErrMalformed) || errors.Is(err, ErrUnexpectedKind):
		b.log.Warn("⚠️ dropping message", zap.String("topic", topic), zap.String("event_id", env.EventID), zap.Error(err))
		_ = d.Ack(false)
	default:
		b.log.Error("handler failed, requeueing", zap.String("topic", topic), zap.String("event_id", env.EventID), zap.Error(err))
		_ = d.Nack(false, !d.Redelivered)
	}
}

// Close waits for in-flight handlers and closes the connection.
func (b *AMQPBroker) Close() error {
	b.wg.Wait()
	b.mu.Lock()
	b.pubCh.Close()
	b.mu.Unlock()
	return b.conn.Close()
}

var _ Queue = (*AMQPBroker)(nil)
