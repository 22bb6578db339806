package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/queue"
	"github.com/unclebandit/mailflow/internal/repository"
)

// CampaignMatcher turns contact-tagged notifications into one trigger event
// per active campaign whose trigger tag matches.
type CampaignMatcher struct {
	Campaigns repository.CampaignRepositoryInterface
	Publisher queue.Publisher
	Metrics   metrics.Sink
	Log       *zap.Logger
	Now       func() time.Time
}

// Handle is the contact-events consumer.
func (m *CampaignMatcher) Handle(ctx context.Context, env queue.Envelope) error {
	var ev model.ContactTaggedEvent
	if err := env.Decode(queue.KindContactTagged, &ev); err != nil {
		return err
	}
	_, err := m.FanOut(ctx, env.EventID, ev)
	return err
}

// FanOut publishes the trigger events for ev. Trigger event ids derive from
// sourceID so a redelivered notification yields the same ids; an empty
// sourceID gets fresh ones. Every publish is attempted; the joined errors are
// returned so the bus redelivers.
func (m *CampaignMatcher) FanOut(ctx context.Context, sourceID string, ev model.ContactTaggedEvent) ([]model.TriggerEvent, error) {
	tag := model.NormalizeTag(ev.Tag)
	log := m.Log.With(zap.Int64("contact_id", ev.ContactID), zap.String("tag", tag))

	campaigns, err := m.Campaigns.FindActiveByTriggerTag(ctx, tag)
	if err != nil {
		log.Error("failed to look up campaigns", zap.Error(err))
		return nil, err
	}
	if len(campaigns) == 0 {
		log.Debug("no active campaign for tag")
		return nil, nil
	}

	triggers := make([]model.TriggerEvent, 0, len(campaigns))
	var errs []error
	for _, c := range campaigns {
		trig := model.TriggerEvent{
			CampaignID: c.ID,
			ContactID:  ev.ContactID,
			TemplateID: c.TemplateID,
			EventID:    triggerEventID(sourceID, c.ID),
			Timestamp:  m.Now(),
		}
		env, err := queue.NewEnvelope(queue.KindCampaignTriggered, trig)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		env.EventID = trig.EventID
		if err := m.Publisher.Publish(ctx, queue.TopicCampaignTriggered, env); err != nil {
			m.Metrics.PublishError(queue.TopicCampaignTriggered)
			log.Error("⚠️ failed to publish trigger", zap.Int64("campaign_id", c.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("campaign %d: %w", c.ID, err))
			continue
		}
		triggers = append(triggers, trig)
	}

	m.Metrics.TriggersFannedOut(len(triggers))
	log.Info("🎯 campaigns triggered", zap.Int("matched", len(campaigns)), zap.Int("published", len(triggers)))
	return triggers, errors.Join(errs...)
}

func triggerEventID(sourceID string, campaignID int64) string {
	if sourceID == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s:%d", sourceID, campaignID)
}
