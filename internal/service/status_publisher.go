package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/queue"
)

// StatusPublisher emits StatusEvents onto the email-events topic. Publishing
// is best-effort: failures are logged and never retried.
type StatusPublisher struct {
	Publisher queue.Publisher
	Metrics   metrics.Sink
	Log       *zap.Logger
}

func (p *StatusPublisher) Publish(ctx context.Context, e *model.Email, ev model.StatusEvent) {
	kind := queue.KindEmailStatus
	if ev.Status == model.StatusSent {
		kind = queue.KindEmailSent
	}
	log := p.Log.With(zap.Int64("record_id", e.ID), zap.String("tracking_token", e.TrackingToken), zap.String("status", string(ev.Status)))

	env, err := queue.NewEnvelope(kind, ev)
	if err != nil {
		log.Error("failed to encode status event", zap.Error(err))
		return
	}
	if err := p.Publisher.Publish(ctx, queue.TopicEmailEvents, env); err != nil {
		p.Metrics.PublishError(queue.TopicEmailEvents)
		log.Error("⚠️ failed to publish status event", zap.Error(err))
		return
	}
	log.Debug("status event published", zap.String("event_id", env.EventID))
}

func statusEvent(e *model.Email, metadata map[string]string) model.StatusEvent {
	ev := model.StatusEvent{
		RecordID:      e.ID,
		TrackingToken: e.TrackingToken,
		Status:        e.Status,
		Timestamp:     e.UpdatedAt,
		Metadata:      metadata,
	}
	switch e.Status {
	case model.StatusSent:
		ev.Timestamp = *e.SentAt
	case model.StatusOpened:
		ev.Timestamp = *e.OpenedAt
	case model.StatusClicked:
		ev.Timestamp = *e.ClickedAt
	}
	return ev
}
