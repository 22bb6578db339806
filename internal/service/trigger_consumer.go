package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/logger"
	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/queue"
)

type Deliverer interface {
	Deliver(ctx context.Context, campaignID, contactID, templateID int64) *model.Email
}

// Deduplicator records keys and reports whether one is new.
type Deduplicator interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
}

// TriggerConsumer runs the pipeline once per campaign-triggered event. With a
// Deduplicator set, events are skipped when their key was already seen.
type TriggerConsumer struct {
	Delivery Deliverer
	Dedupe   Deduplicator
	Metrics  metrics.Sink
	Log      *zap.Logger
}

func (c *TriggerConsumer) Handle(ctx context.Context, env queue.Envelope) error {
	var ev model.TriggerEvent
	if err := env.Decode(queue.KindCampaignTriggered, &ev); err != nil {
		return err
	}
	if ev.EventID == "" {
		ev.EventID = env.EventID
	}
	c.Process(ctx, ev)
	return nil
}

// Process returns nil when the event was skipped as a duplicate.
func (c *TriggerConsumer) Process(ctx context.Context, ev model.TriggerEvent) *model.Email {
	log := c.Log.With(logger.Delivery(ev.CampaignID, ev.ContactID, ev.TemplateID)...).With(zap.String("event_id", ev.EventID))

	if c.Dedupe != nil && ev.EventID != "" {
		first, err := c.Dedupe.FirstSeen(ctx, TriggerKey(ev))
		switch {
		case err != nil:
			log.Warn("dedupe unavailable, processing anyway", zap.Error(err))
		case !first:
			c.Metrics.DuplicateTrigger()
			log.Info("duplicate trigger skipped")
			return nil
		}
	}

	log.Info("📩 processing triggered campaign")
	return c.Delivery.Deliver(ctx, ev.CampaignID, ev.ContactID, ev.TemplateID)
}

func TriggerKey(ev model.TriggerEvent) string {
	return fmt.Sprintf("trigger:%d:%d:%d:%s", ev.CampaignID, ev.ContactID, ev.TemplateID, ev.EventID)
}
