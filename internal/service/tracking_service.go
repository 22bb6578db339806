package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/repository"
)

// TrackingService records opens and clicks reported by the tracking
// endpoints. Unknown tokens and denied transitions are logged and otherwise
// ignored; the caller always answers the recipient the same way.
type TrackingService struct {
	Emails  repository.EmailRepositoryInterface
	Status  *StatusPublisher
	Metrics metrics.Sink
	Log     *zap.Logger
	Now     func() time.Time
}

// RecordOpen moves a Sent or Delivered email to Opened. Repeat opens change
// nothing and publish nothing.
func (s *TrackingService) RecordOpen(ctx context.Context, token string) {
	e, log := s.lookup(ctx, metrics.TrackingOpen, token)
	if e == nil {
		return
	}
	at := s.Now()
	opened, changed, err := applyTransition(ctx, s.Emails, s.Metrics, e, func(e *model.Email) (bool, error) {
		return e.MarkOpened(at)
	})
	if err != nil {
		s.logDenied(log, "open", err)
		return
	}
	if !changed {
		log.Debug("repeat open ignored")
		return
	}
	log.Info("👀 email opened")
	s.Status.Publish(ctx, opened, statusEvent(opened, nil))
}

// RecordClick moves an email that reached its recipient to Clicked. Every
// click overwrites clickedAt and publishes.
func (s *TrackingService) RecordClick(ctx context.Context, token, url string) {
	e, log := s.lookup(ctx, metrics.TrackingClick, token)
	if e == nil {
		return
	}
	at := s.Now()
	clicked, _, err := applyTransition(ctx, s.Emails, s.Metrics, e, func(e *model.Email) (bool, error) {
		return true, e.MarkClicked(at)
	})
	if err != nil {
		s.logDenied(log, "click", err)
		return
	}
	log.Info("🖱️ email clicked", zap.String("url", url))

	var metadata map[string]string
	if url != "" {
		metadata = map[string]string{"url": url}
	}
	s.Status.Publish(ctx, clicked, statusEvent(clicked, metadata))
}

func (s *TrackingService) lookup(ctx context.Context, kind, token string) (*model.Email, *zap.Logger) {
	log := s.Log.With(zap.String("tracking_token", token), zap.String("kind", kind))
	e, err := s.Emails.GetByTrackingToken(ctx, token)
	if err != nil {
		s.Metrics.TrackingEvent(kind, false)
		if errors.Is(err, appErrors.ErrNotFound) {
			log.Warn("unknown tracking token")
		} else {
			log.Error("tracking lookup failed", zap.Error(err))
		}
		return nil, log
	}
	s.Metrics.TrackingEvent(kind, true)
	return e, log.With(zap.Int64("record_id", e.ID))
}

func (s *TrackingService) logDenied(log *zap.Logger, what string, err error) {
	if errors.Is(err, model.ErrTransitionDenied) {
		log.Warn(what+" ignored", zap.Error(err))
		return
	}
	log.Error("failed to record "+what, zap.Error(err))
}
