package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/client"
	"github.com/unclebandit/mailflow/internal/logger"
	"github.com/unclebandit/mailflow/internal/mail"
	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/repository"
	"github.com/unclebandit/mailflow/internal/tracking"
	"github.com/unclebandit/mailflow/internal/workpool"
)

// DeliveryService runs the delivery pipeline for one (campaign, contact,
// template) triple. It never returns an error: every failure ends up as a
// Failed ledger row.
type DeliveryService struct {
	Emails    repository.EmailRepositoryInterface
	Contacts  client.ContactLookup
	Templates client.TemplateLookup
	Transport mail.Transport
	Status    *StatusPublisher
	Pool      *workpool.Pool
	Metrics   metrics.Sink
	Log       *zap.Logger

	BaseURL     string
	From        string
	TrackClicks bool
	Now         func() time.Time
}

// Deliver creates a new ledger row for the triple and attempts the send.
func (s *DeliveryService) Deliver(ctx context.Context, campaignID, contactID, templateID int64) *model.Email {
	rec := &model.Email{
		CampaignID:    campaignID,
		ContactID:     contactID,
		TemplateID:    templateID,
		TrackingToken: tracking.NewToken(),
	}
	return s.run(ctx, rec, false)
}

// Redeliver re-runs the pipeline for a Failed row, mutating it in place. The
// row keeps its id and tracking token.
func (s *DeliveryService) Redeliver(ctx context.Context, failed *model.Email) *model.Email {
	return s.run(ctx, failed, true)
}

func (s *DeliveryService) run(ctx context.Context, rec *model.Email, retry bool) *model.Email {
	start := s.Now()
	log := s.Log.With(logger.Delivery(rec.CampaignID, rec.ContactID, rec.TemplateID)...)
	if retry {
		log = log.With(zap.Int64("record_id", rec.ID), zap.String("tracking_token", rec.TrackingToken))
	}
	log.Info("✉️ preparing email", zap.Bool("retry", retry))

	out := s.pipeline(ctx, rec, retry, log)

	s.Metrics.DeliveryOutcome(string(out.Status))
	s.Metrics.DeliveryDuration(s.Now().Sub(start))
	return out
}

func (s *DeliveryService) pipeline(ctx context.Context, rec *model.Email, retry bool, log *zap.Logger) *model.Email {
	contact, err := workpool.Run(ctx, s.Pool, func(ctx context.Context) (*model.Contact, error) {
		return s.Contacts.GetContact(ctx, rec.ContactID)
	})
	if err != nil {
		return s.fail(ctx, rec, retry, "Failed to fetch contact: "+err.Error(), log)
	}
	if contact == nil || contact.Email == "" {
		return s.fail(ctx, rec, retry, "Contact or contact email is null", log)
	}
	rec.RecipientEmail = contact.Email

	if _, err := workpool.Run(ctx, s.Pool, func(ctx context.Context) (*model.Template, error) {
		return s.Templates.GetTemplate(ctx, rec.TemplateID)
	}); err != nil {
		return s.fail(ctx, rec, retry, "Failed to fetch template: "+err.Error(), log)
	}

	rendered, err := workpool.Run(ctx, s.Pool, func(ctx context.Context) (*model.RenderedTemplate, error) {
		return s.Templates.RenderTemplate(ctx, rec.TemplateID, contact.TemplateVars())
	})
	if err != nil {
		return s.fail(ctx, rec, retry, "Failed to render template: "+err.Error(), log)
	}
	if rendered == nil {
		return s.fail(ctx, rec, retry, "Rendered template is null", log)
	}

	content := rendered.Content
	if s.TrackClicks {
		content = tracking.RewriteLinks(content, s.BaseURL, rec.TrackingToken)
	}
	rec.Subject = rendered.Subject
	rec.Content = tracking.AddPixel(content, s.BaseURL, rec.TrackingToken)

	pending, ok := s.persistPending(ctx, rec, retry, log)
	if !ok {
		return pending
	}
	log = log.With(zap.Int64("record_id", pending.ID), zap.String("tracking_token", pending.TrackingToken))

	s.Metrics.PoolInFlight(s.Pool.InFlight())
	_, sendErr := workpool.Run(ctx, s.Pool, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.Transport.Send(ctx, &mail.Message{
			From:          s.From,
			To:            []string{pending.RecipientEmail},
			Subject:       pending.Subject,
			HTML:          pending.Content,
			TrackingToken: pending.TrackingToken,
			Headers: map[string]string{
				"X-Campaign-ID": strconv.FormatInt(pending.CampaignID, 10),
			},
		})
	})

	if sendErr != nil {
		log.Error("❌ failed to send email", zap.Error(sendErr))
		failed, _, err := applyTransition(ctx, s.Emails, s.Metrics, pending, func(e *model.Email) (bool, error) {
			return true, e.MarkFailed(sendErr.Error())
		})
		if err != nil {
			log.Error("failed to record send failure", zap.Error(err))
		}
		return failed
	}

	sent, _, err := applyTransition(ctx, s.Emails, s.Metrics, pending, func(e *model.Email) (bool, error) {
		return true, e.MarkSent(s.Now())
	})
	if err != nil {
		// a concurrent writer owns the row now; this invocation is stale
		log.Warn("dropping stale delivery after send", zap.Error(err))
		return sent
	}
	log.Info("✅ email sent", zap.String("recipient", sent.RecipientEmail))

	s.Status.Publish(ctx, sent, statusEvent(sent, map[string]string{
		"campaignId":     strconv.FormatInt(sent.CampaignID, 10),
		"contactId":      strconv.FormatInt(sent.ContactID, 10),
		"recipientEmail": sent.RecipientEmail,
	}))
	return sent
}

// persistPending stores the rendered row as Pending. For a retry this is the
// Failed -> Pending re-entry on the existing row; ok is false when another
// writer already moved the row on.
func (s *DeliveryService) persistPending(ctx context.Context, rec *model.Email, retry bool, log *zap.Logger) (*model.Email, bool) {
	if !retry {
		if err := rec.MarkPending(); err != nil {
			return s.fail(ctx, rec, retry, err.Error(), log), false
		}
		if err := s.Emails.Create(ctx, rec); err != nil {
			log.Error("failed to persist pending email", zap.Error(err))
			rec.Status = ""
			return s.fail(ctx, rec, retry, "Failed to persist email: "+err.Error(), log), false
		}
		return rec, true
	}

	subject, content, recipient := rec.Subject, rec.Content, rec.RecipientEmail
	pending, _, err := applyTransition(ctx, s.Emails, s.Metrics, rec, func(e *model.Email) (bool, error) {
		if err := e.MarkPending(); err != nil {
			return false, err
		}
		e.Subject, e.Content, e.RecipientEmail = subject, content, recipient
		return true, nil
	})
	if err != nil {
		log.Warn("dropping stale retry", zap.Error(err))
		return pending, false
	}
	return pending, true
}

// fail records a pre-send failure. New triples get a row created directly in
// Failed; a retry refreshes the error on its existing row.
func (s *DeliveryService) fail(ctx context.Context, rec *model.Email, retry bool, reason string, log *zap.Logger) *model.Email {
	log.Error("❌ email failed before send", zap.String("reason", reason))

	if !retry {
		if err := rec.MarkFailed(reason); err != nil {
			log.Error("invalid failure transition", zap.Error(err))
			return rec
		}
		if err := s.Emails.Create(ctx, rec); err != nil {
			log.Error("failed to persist failed email", zap.Error(err))
		}
		return rec
	}

	recipient := rec.RecipientEmail
	failed, _, err := applyTransition(ctx, s.Emails, s.Metrics, rec, func(e *model.Email) (bool, error) {
		if recipient != "" {
			e.RecipientEmail = recipient
		}
		return true, e.MarkFailed(reason)
	})
	if err != nil && !errors.Is(err, model.ErrTransitionDenied) {
		log.Error("failed to record retry failure", zap.Error(err))
	}
	return failed
}
