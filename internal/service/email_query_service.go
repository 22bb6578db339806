package service

import (
	"context"
	"strings"
	"time"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/repository"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

// Analytics is the monthly series over a reporting period. Labels[i] names
// the month counted in Sent[i], Opened[i] and Clicked[i].
type Analytics struct {
	Period  string   `json:"period"`
	Labels  []string `json:"labels"`
	Sent    []int64  `json:"sent"`
	Opened  []int64  `json:"opened"`
	Clicked []int64  `json:"clicked"`
}

// EmailQueryService is the read side of the ledger.
type EmailQueryService struct {
	Emails repository.EmailRepositoryInterface
	Now    func() time.Time
}

func (s *EmailQueryService) Get(ctx context.Context, id int64) (*model.Email, error) {
	if id <= 0 {
		return nil, appErrors.Validation("invalid email id %d", id)
	}
	return s.Emails.GetByID(ctx, id)
}

// Recent returns the newest rows first. A zero limit means the default.
func (s *EmailQueryService) Recent(ctx context.Context, limit int) ([]*model.Email, error) {
	if limit == 0 {
		limit = defaultRecentLimit
	}
	if limit < 0 || limit > maxRecentLimit {
		return nil, appErrors.Validation("limit must be between 1 and %d", maxRecentLimit)
	}
	return s.Emails.ListRecent(ctx, limit)
}

func (s *EmailQueryService) ByCampaign(ctx context.Context, campaignID int64) ([]*model.Email, error) {
	return s.Emails.ListByCampaign(ctx, campaignID)
}

func (s *EmailQueryService) ByContact(ctx context.Context, contactID int64) ([]*model.Email, error) {
	return s.Emails.ListByContact(ctx, contactID)
}

func (s *EmailQueryService) Stats(ctx context.Context, campaignID int64) (*model.CampaignStats, error) {
	return s.Emails.CampaignStats(ctx, campaignID)
}

// Analytics buckets rows created since the start of period by month.
// Unknown periods fall back to a year.
func (s *EmailQueryService) Analytics(ctx context.Context, period string) (*Analytics, error) {
	period = strings.ToLower(strings.TrimSpace(period))
	counts, err := s.Emails.MonthlyCounts(ctx, periodStart(s.Now(), period))
	if err != nil {
		return nil, err
	}

	out := &Analytics{
		Period:  period,
		Labels:  make([]string, 0, len(counts)),
		Sent:    make([]int64, 0, len(counts)),
		Opened:  make([]int64, 0, len(counts)),
		Clicked: make([]int64, 0, len(counts)),
	}
	for _, c := range counts {
		out.Labels = append(out.Labels, time.Month(c.Month).String())
		out.Sent = append(out.Sent, c.Sent)
		out.Opened = append(out.Opened, c.Opened)
		out.Clicked = append(out.Clicked, c.Clicked)
	}
	return out, nil
}

func periodStart(now time.Time, period string) time.Time {
	switch period {
	case "week":
		return now.AddDate(0, 0, -7)
	case "month":
		return now.AddDate(0, -1, 0)
	case "quarter":
		return now.AddDate(0, -3, 0)
	default:
		return now.AddDate(-1, 0, 0)
	}
}
