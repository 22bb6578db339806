package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/service"
)

func TestEmailQueryRecentLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		h.clock.Advance(time.Second)
		h.delivery.Deliver(ctx, 7, 42, 3)
	}
	q := &service.EmailQueryService{Emails: h.emails, Now: h.clock.Now}

	recent, err := q.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 10)
	assert.Greater(t, recent[0].ID, recent[1].ID)

	_, err = q.Recent(ctx, -1)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = q.Recent(ctx, 1000)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestEmailQueryStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.delivery.Deliver(ctx, 7, 42, 3)
	b := h.delivery.Deliver(ctx, 7, 42, 3)
	h.delivery.Deliver(ctx, 7, 42, 3)
	h.transport.setErr(errSMTP)
	h.delivery.Deliver(ctx, 7, 42, 3)

	h.tracking.RecordOpen(ctx, a.TrackingToken)
	h.tracking.RecordClick(ctx, b.TrackingToken, "")

	q := &service.EmailQueryService{Emails: h.emails, Now: h.clock.Now}
	stats, err := q.Stats(ctx, 7)

	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Sent)
	assert.Equal(t, int64(2), stats.Opened)
	assert.Equal(t, int64(1), stats.Clicked)
	assert.Equal(t, int64(1), stats.Failed)
	assert.InDelta(t, 66.67, stats.OpenRate, 0.01)
	assert.InDelta(t, 33.33, stats.ClickRate, 0.01)
}

func TestEmailQueryAnalytics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.delivery.Deliver(ctx, 7, 42, 3)
	h.clock.Advance(-40 * 24 * time.Hour)
	h.delivery.Deliver(ctx, 7, 42, 3)
	h.clock.Advance(40 * 24 * time.Hour)

	q := &service.EmailQueryService{Emails: h.emails, Now: h.clock.Now}

	month, err := q.Analytics(ctx, "month")
	require.NoError(t, err)
	assert.Equal(t, []string{"March"}, month.Labels)
	assert.Equal(t, []int64{1}, month.Sent)

	year, err := q.Analytics(ctx, "anything")
	require.NoError(t, err)
	assert.Equal(t, []string{"January", "March"}, year.Labels)
	assert.Equal(t, []int64{1, 1}, year.Sent)
	assert.Equal(t, []int64{0, 0}, year.Opened)
}

func TestEmailQueryGetValidatesID(t *testing.T) {
	h := newHarness(t)
	q := &service.EmailQueryService{Emails: h.emails, Now: h.clock.Now}

	_, err := q.Get(context.Background(), 0)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = q.Get(context.Background(), 99)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
