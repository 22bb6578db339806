// internal/handler/tracking_handler.go
package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/tracking"
)

// Tracker records the callbacks behind the tracking endpoints.
type Tracker interface {
	RecordOpen(ctx context.Context, token string)
	RecordClick(ctx context.Context, token, url string)
}

// TrackingHandler serves the open pixel and the click redirect. Neither
// response depends on whether the token is known.
type TrackingHandler struct {
	Tracking Tracker
	Log      *zap.Logger
}

func (h *TrackingHandler) Routes(r chi.Router) {
	r.Get("/t/{token}", h.OpenHandler)
	r.Get("/t/click/{token}", h.ClickHandler)
}

// OpenHandler records an open and returns the 1x1 pixel.
func (h *TrackingHandler) OpenHandler(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	h.Tracking.RecordOpen(context.WithoutCancel(r.Context()), token)

	w.Header().Set("Content-Type", tracking.PixelContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(tracking.Pixel)
}

// ClickHandler records a click and redirects to the url query parameter.
// Only absolute http(s) destinations are followed.
func (h *TrackingHandler) ClickHandler(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	dest := r.URL.Query().Get("url")

	u, err := url.Parse(dest)
	if dest == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		h.Log.Warn("click without a valid destination", zap.String("tracking_token", token), zap.String("url", dest))
		http.Error(w, "invalid destination url", http.StatusBadRequest)
		return
	}

	h.Tracking.RecordClick(context.WithoutCancel(r.Context()), token, dest)
	http.Redirect(w, r, dest, http.StatusFound)
}
