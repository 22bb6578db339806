package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
)

// MemoryEmailRepository is a ledger kept in process memory. It applies the
// same version checks as the Postgres ledger and hands out copies only.
type MemoryEmailRepository struct {
	mu      sync.Mutex
	emails  map[int64]*model.Email
	byToken map[string]int64
	nextID  int64
	Now     func() time.Time
}

func NewMemoryEmailRepository() *MemoryEmailRepository {
	return &MemoryEmailRepository{
		emails:  make(map[int64]*model.Email),
		byToken: make(map[string]int64),
		Now:     time.Now,
	}
}

func (r *MemoryEmailRepository) Create(_ context.Context, e *model.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byToken[e.TrackingToken]; exists {
		return appErrors.ErrAlreadyExists
	}
	now := r.Now()
	r.nextID++
	e.ID = r.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.Version = 0

	r.emails[e.ID] = clone(e)
	r.byToken[e.TrackingToken] = e.ID
	return nil
}

func (r *MemoryEmailRepository) Update(_ context.Context, e *model.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.emails[e.ID]
	if !ok {
		return appErrors.NewNotFound("email", e.ID)
	}
	if stored.Version != e.Version {
		return appErrors.NewConflict(e.ID, e.Version)
	}
	e.Version++
	e.UpdatedAt = r.Now()
	// identity and linkage never change after insert
	e.TrackingToken = stored.TrackingToken
	e.CreatedAt = stored.CreatedAt
	r.emails[e.ID] = clone(e)
	return nil
}

func (r *MemoryEmailRepository) GetByID(_ context.Context, id int64) (*model.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.emails[id]
	if !ok {
		return nil, appErrors.NewNotFound("email", id)
	}
	return clone(e), nil
}

func (r *MemoryEmailRepository) GetByTrackingToken(_ context.Context, token string) (*model.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byToken[token]
	if !ok {
		return nil, appErrors.NewNotFound("email", token)
	}
	return clone(r.emails[id]), nil
}

func (r *MemoryEmailRepository) ListFailedSince(_ context.Context, since time.Time) ([]*model.Email, error) {
	out := r.filter(func(e *model.Email) bool {
		return e.Status == model.StatusFailed && !e.CreatedAt.Before(since)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryEmailRepository) ListRecent(_ context.Context, limit int) ([]*model.Email, error) {
	out := r.filter(func(*model.Email) bool { return true })
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryEmailRepository) ListByCampaign(_ context.Context, campaignID int64) ([]*model.Email, error) {
	return r.byID(func(e *model.Email) bool { return e.CampaignID == campaignID }), nil
}

func (r *MemoryEmailRepository) ListByContact(_ context.Context, contactID int64) ([]*model.Email, error) {
	return r.byID(func(e *model.Email) bool { return e.ContactID == contactID }), nil
}

func (r *MemoryEmailRepository) CampaignStats(_ context.Context, campaignID int64) (*model.CampaignStats, error) {
	s := &model.CampaignStats{CampaignID: campaignID}
	for _, e := range r.filter(func(e *model.Email) bool { return e.CampaignID == campaignID }) {
		if e.Status.Reached() {
			s.Sent++
		}
		switch e.Status {
		case model.StatusDelivered:
			s.Delivered++
		case model.StatusOpened:
			s.Opened++
		case model.StatusClicked:
			s.Opened++
			s.Clicked++
		case model.StatusFailed:
			s.Failed++
		}
	}
	withRates(s)
	return s, nil
}

func (r *MemoryEmailRepository) MonthlyCounts(_ context.Context, since time.Time) ([]model.MonthlyCount, error) {
	buckets := map[int]*model.MonthlyCount{}
	for _, e := range r.filter(func(e *model.Email) bool { return !e.CreatedAt.Before(since) }) {
		m := int(e.CreatedAt.Month())
		b, ok := buckets[m]
		if !ok {
			b = &model.MonthlyCount{Month: m}
			buckets[m] = b
		}
		if e.Status.Reached() {
			b.Sent++
		}
		if e.Status == model.StatusOpened || e.Status == model.StatusClicked {
			b.Opened++
		}
		if e.Status == model.StatusClicked {
			b.Clicked++
		}
	}
	counts := make([]model.MonthlyCount, 0, len(buckets))
	for _, b := range buckets {
		counts = append(counts, *b)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Month < counts[j].Month })
	return counts, nil
}

func (r *MemoryEmailRepository) filter(keep func(*model.Email) bool) []*model.Email {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*model.Email{}
	for _, e := range r.emails {
		if keep(e) {
			out = append(out, clone(e))
		}
	}
	return out
}

func (r *MemoryEmailRepository) byID(keep func(*model.Email) bool) []*model.Email {
	out := r.filter(keep)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clone(e *model.Email) *model.Email {
	c := *e
	if e.ErrorMessage != nil {
		msg := *e.ErrorMessage
		c.ErrorMessage = &msg
	}
	c.SentAt = copyTime(e.SentAt)
	c.OpenedAt = copyTime(e.OpenedAt)
	c.ClickedAt = copyTime(e.ClickedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var _ EmailRepositoryInterface = (*MemoryEmailRepository)(nil)
