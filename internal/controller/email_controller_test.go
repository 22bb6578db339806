package controller_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/unclebandit/mailflow/internal/controller"
	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/service"
)

type mockQueries struct {
	emails   map[int64]*model.Email
	err      error
	limit    int
	period   string
	campaign int64
}

func (m *mockQueries) Get(_ context.Context, id int64) (*model.Email, error) {
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.emails[id]
	if !ok {
		return nil, appErrors.NewNotFound("email", id)
	}
	return e, nil
}

func (m *mockQueries) Recent(_ context.Context, limit int) ([]*model.Email, error) {
	m.limit = limit
	if limit > 100 {
		return nil, appErrors.Validation("limit too large")
	}
	return []*model.Email{m.emails[1]}, m.err
}

func (m *mockQueries) ByCampaign(_ context.Context, id int64) ([]*model.Email, error) {
	m.campaign = id
	return []*model.Email{m.emails[1]}, m.err
}

func (m *mockQueries) ByContact(_ context.Context, _ int64) ([]*model.Email, error) {
	return []*model.Email{}, m.err
}

func (m *mockQueries) Stats(_ context.Context, id int64) (*model.CampaignStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.CampaignStats{CampaignID: id, Sent: 4, Opened: 2, OpenRate: 50}, nil
}

func (m *mockQueries) Analytics(_ context.Context, period string) (*service.Analytics, error) {
	m.period = period
	return &service.Analytics{Period: period, Labels: []string{"March"}, Sent: []int64{3}, Opened: []int64{1}, Clicked: []int64{0}}, m.err
}

type mockDeliverer struct {
	calls [][3]int64
}

func (m *mockDeliverer) Deliver(_ context.Context, campaignID, contactID, templateID int64) *model.Email {
	m.calls = append(m.calls, [3]int64{campaignID, contactID, templateID})
	return &model.Email{ID: 9, CampaignID: campaignID, ContactID: contactID, TemplateID: templateID, Status: model.StatusSent}
}

type mockRetrier struct {
	lookback time.Duration
	err      error
}

func (m *mockRetrier) RunWindow(_ context.Context, lookback time.Duration) (service.RetryResult, error) {
	m.lookback = lookback
	return service.RetryResult{Selected: 2, Sent: 1, Failed: 1}, m.err
}

type fixture struct {
	queries  *mockQueries
	delivery *mockDeliverer
	retry    *mockRetrier
	router   http.Handler
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		queries: &mockQueries{emails: map[int64]*model.Email{
			1: {ID: 1, CampaignID: 7, ContactID: 42, TemplateID: 3, Status: model.StatusSent, TrackingToken: "tok-1"},
		}},
		delivery: &mockDeliverer{},
		retry:    &mockRetrier{},
	}
	c := &controller.EmailController{Queries: f.queries, Delivery: f.delivery, Retry: f.retry, Log: zaptest.NewLogger(t)}
	r := chi.NewRouter()
	c.Routes(r)
	f.router = r
	return f
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestGetEmail(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/emails/1")

	require.Equal(t, http.StatusOK, w.Code)
	var got model.Email
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "tok-1", got.TrackingToken)
	assert.Equal(t, model.StatusSent, got.Status)
}

func TestGetEmailErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
		kind   string
	}{
		{"unknown id", "/api/v1/emails/404", nil, http.StatusNotFound, "ResourceNotFound"},
		{"bad id", "/api/v1/emails/abc", nil, http.StatusBadRequest, "ValidationFailed"},
		{"downstream", "/api/v1/emails/1", appErrors.NewDownstream("postgres", errors.New("dial tcp")), http.StatusBadGateway, "DownstreamUnavailable"},
		{"conflict", "/api/v1/emails/1", appErrors.NewConflict(1, 2), http.StatusConflict, "ConcurrencyConflict"},
		{"unexpected", "/api/v1/emails/1", errors.New("boom"), http.StatusInternalServerError, "Unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.queries.err = tt.err

			w := f.do(http.MethodGet, tt.target)

			assert.Equal(t, tt.status, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body["error"])
		})
	}
}

func TestRecentEmails(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/emails/recent?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, f.queries.limit)

	w = f.do(http.MethodGet, "/api/v1/emails/recent")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, f.queries.limit)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/emails/recent?limit=ten").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/emails/recent?limit=500").Code)
}

func TestCampaignEmailsAndStats(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/emails/campaign/7")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), f.queries.campaign)

	w = f.do(http.MethodGet, "/api/v1/emails/campaign/7/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats model.CampaignStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(7), stats.CampaignID)
	assert.Equal(t, 50.0, stats.OpenRate)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/emails/contact/42").Code)
}

func TestAnalyticsDefaultsToMonth(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/emails/analytics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "month", f.queries.period)

	f.do(http.MethodGet, "/api/v1/emails/analytics?period=quarter")
	assert.Equal(t, "quarter", f.queries.period)
}

func TestSendRunsPipeline(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/emails/campaign/7/contact/42/template/3")

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, [][3]int64{{7, 42, 3}}, f.delivery.calls)
	var got model.Email
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(9), got.ID)
}

func TestSendRejectsBadIDs(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/emails/campaign/7/contact/0/template/3")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.delivery.calls)
}

func TestRunRetry(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/emails/retry")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Hour, f.retry.lookback)
	var res service.RetryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, service.RetryResult{Selected: 2, Sent: 1, Failed: 1}, res)

	f.do(http.MethodPost, "/api/v1/emails/retry?minutes=15")
	assert.Equal(t, 15*time.Minute, f.retry.lookback)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/emails/retry?minutes=-1").Code)
}
