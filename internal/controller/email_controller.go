// internal/controller/email_controller.go
package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/service"
)

type EmailQueries interface {
	Get(ctx context.Context, id int64) (*model.Email, error)
	Recent(ctx context.Context, limit int) ([]*model.Email, error)
	ByCampaign(ctx context.Context, campaignID int64) ([]*model.Email, error)
	ByContact(ctx context.Context, contactID int64) ([]*model.Email, error)
	Stats(ctx context.Context, campaignID int64) (*model.CampaignStats, error)
	Analytics(ctx context.Context, period string) (*service.Analytics, error)
}

type Retrier interface {
	RunWindow(ctx context.Context, lookback time.Duration) (service.RetryResult, error)
}

// EmailController exposes the ledger read side plus manual send and retry.
type EmailController struct {
	Queries  EmailQueries
	Delivery service.Deliverer
	Retry    Retrier
	Log      *zap.Logger
}

func (c *EmailController) Routes(r chi.Router) {
	r.Route("/api/v1/emails", func(r chi.Router) {
		r.Get("/recent", c.Recent)
		r.Get("/analytics", c.Analytics)
		r.Post("/retry", c.RunRetry)
		r.Get("/campaign/{id}", c.ByCampaign)
		r.Get("/campaign/{id}/stats", c.CampaignStats)
		r.Get("/contact/{id}", c.ByContact)
		r.Post("/campaign/{id}/contact/{contactId}/template/{templateId}", c.Send)
		r.Get("/{id}", c.Get)
	})
}

func (c *EmailController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := c.pathID(w, r, "id")
	if !ok {
		return
	}
	e, err := c.Queries.Get(r.Context(), id)
	c.respond(w, http.StatusOK, e, err)
}

func (c *EmailController) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			c.writeError(w, appErrors.Validation("invalid limit %q", s))
			return
		}
		limit = n
	}
	emails, err := c.Queries.Recent(r.Context(), limit)
	c.respond(w, http.StatusOK, emails, err)
}

func (c *EmailController) ByCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := c.pathID(w, r, "id")
	if !ok {
		return
	}
	emails, err := c.Queries.ByCampaign(r.Context(), id)
	c.respond(w, http.StatusOK, emails, err)
}

func (c *EmailController) ByContact(w http.ResponseWriter, r *http.Request) {
	id, ok := c.pathID(w, r, "id")
	if !ok {
		return
	}
	emails, err := c.Queries.ByContact(r.Context(), id)
	c.respond(w, http.StatusOK, emails, err)
}

func (c *EmailController) CampaignStats(w http.ResponseWriter, r *http.Request) {
	id, ok := c.pathID(w, r, "id")
	if !ok {
		return
	}
	stats, err := c.Queries.Stats(r.Context(), id)
	c.respond(w, http.StatusOK, stats, err)
}

func (c *EmailController) Analytics(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "month"
	}
	a, err := c.Queries.Analytics(r.Context(), period)
	c.respond(w, http.StatusOK, a, err)
}

// Send runs the pipeline synchronously. The record comes back with 201 even
// when it ended up Failed.
func (c *EmailController) Send(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := c.pathID(w, r, "id")
	if !ok {
		return
	}
	contactID, ok := c.pathID(w, r, "contactId")
	if !ok {
		return
	}
	templateID, ok := c.pathID(w, r, "templateId")
	if !ok {
		return
	}
	e := c.Delivery.Deliver(context.WithoutCancel(r.Context()), campaignID, contactID, templateID)
	c.respond(w, http.StatusCreated, e, nil)
}

func (c *EmailController) RunRetry(w http.ResponseWriter, r *http.Request) {
	minutes := 60
	if s := r.URL.Query().Get("minutes"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.writeError(w, appErrors.Validation("minutes must be a positive integer"))
			return
		}
		minutes = n
	}
	res, err := c.Retry.RunWindow(context.WithoutCancel(r.Context()), time.Duration(minutes)*time.Minute)
	c.respond(w, http.StatusOK, res, err)
}

func (c *EmailController) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	s := chi.URLParam(r, name)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		c.writeError(w, appErrors.Validation("invalid %s %q", name, s))
		return 0, false
	}
	return id, true
}

func (c *EmailController) respond(w http.ResponseWriter, status int, body any, err error) {
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, status, body)
}

func (c *EmailController) writeError(w http.ResponseWriter, err error) {
	kind := appErrors.Kind(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		c.Log.Error("❌ request failed", zap.String("kind", kind), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": kind, "message": err.Error()})
}

func statusFor(kind string) int {
	switch kind {
	case "ResourceNotFound":
		return http.StatusNotFound
	case "ValidationFailed":
		return http.StatusBadRequest
	case "AlreadyExists", "ConcurrencyConflict":
		return http.StatusConflict
	case "DownstreamUnavailable":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
