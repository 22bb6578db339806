package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/unclebandit/mailflow/internal/handler"
	"github.com/unclebandit/mailflow/internal/tracking"
)

type mockTracker struct {
	mu     sync.Mutex
	opens  []string
	clicks [][2]string
}

func (m *mockTracker) RecordOpen(_ context.Context, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens = append(m.opens, token)
}

func (m *mockTracker) RecordClick(_ context.Context, token, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicks = append(m.clicks, [2]string{token, url})
}

func newRouter(t *testing.T) (*mockTracker, http.Handler) {
	tr := &mockTracker{}
	h := &handler.TrackingHandler{Tracking: tr, Log: zaptest.NewLogger(t)}
	r := chi.NewRouter()
	h.Routes(r)
	return tr, r
}

func TestOpenHandlerServesPixel(t *testing.T) {
	tr, r := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/t/abc-123", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, tracking.Pixel, w.Body.Bytes())
	assert.Equal(t, []string{"abc-123"}, tr.opens)
}

func TestClickHandlerRedirects(t *testing.T) {
	tr, r := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/t/click/abc-123?url="+"https%3A%2F%2Fshop.test%2Fsale%3Fq%3D1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://shop.test/sale?q=1", w.Header().Get("Location"))
	assert.Equal(t, [][2]string{{"abc-123", "https://shop.test/sale?q=1"}}, tr.clicks)
}

func TestClickHandlerRejectsBadDestinations(t *testing.T) {
	for _, target := range []string{
		"/t/click/abc-123",
		"/t/click/abc-123?url=javascript%3Aalert(1)",
		"/t/click/abc-123?url=%2Frelative",
	} {
		t.Run(target, func(t *testing.T) {
			tr, r := newRouter(t)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, tr.clicks)
		})
	}
}
