package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNoSubscribers  = errors.New("no subscribers")
	ErrUnexpectedKind = errors.New("unexpected message kind")
	ErrMalformed      = errors.New("malformed message")
	ErrHandlerPanic   = errors.New("handler panicked")
)

// invoke runs handler and converts a panic into ErrHandlerPanic so one bad
// message cannot take the consumer process down.
func invoke(ctx context.Context, handler Handler, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(ctx, env)
}

// Handler processes one message. Returning an error marks the message as not
// processed; malformed input should be dropped by returning ErrMalformed.
type Handler func(ctx context.Context, env Envelope) error

type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler Handler) error
}

// Queue is a process-wide bus client. Close releases it at shutdown.
type Queue interface {
	Publisher
	Subscriber
	Close() error
}

// InMemoryQueue delivers each message to every subscriber of its topic on a
// fresh goroutine, retrying failed handlers with a linear backoff.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	wg         sync.WaitGroup
	log        *zap.Logger
	MaxRetries int
	Backoff    time.Duration
}

func NewInMemoryQueue(log *zap.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		log:        log.Named("queue"),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

func (q *InMemoryQueue) Publish(ctx context.Context, topic string, env Envelope) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("%w for topic %s", ErrNoSubscribers, topic)
	}

	// handlers outlive the publishing request
	ctx = context.WithoutCancel(ctx)
	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(ctx, topic, handler, env)
	}
	return nil
}

func (q *InMemoryQueue) processJob(ctx context.Context, topic string, handler Handler, env Envelope) {
	defer q.wg.Done()
	for attempt := 0; attempt <= q.MaxRetries; attempt++ {
		err := invoke(ctx, handler, env)
		if err == nil {
			return
		}
		if errors.Is(err, ErrHandlerPanic) {
			q.log.Error("❌ handler panicked, dropping message", zap.String("topic", topic), zap.String("event_id", env.EventID), zap.Error(err))
			return
		}
		if errors.Is(err, ErrMalformed) || errors.Is(err, ErrUnexpectedKind) {
			q.log.Warn("⚠️ dropping message", zap.String("topic", topic), zap.String("event_id", env.EventID), zap.Error(err))
			return
		}
		q.log.Warn("job failed",
			zap.String("topic", topic), zap.String("event_id", env.EventID),
			zap.Int("attempt", attempt+1), zap.Int("max_retries", q.MaxRetries), zap.Error(err))
		time.Sleep(time.Duration(attempt+1) * q.Backoff)
	}
	q.log.Error("❌ job permanently failed", zap.String("topic", topic), zap.String("event_id", env.EventID))
}

func (q *InMemoryQueue) Subscribe(_ context.Context, topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every dispatched message has been handled.
func (q *InMemoryQueue) Wait() { q.wg.Wait() }

func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
