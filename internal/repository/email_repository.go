package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
)

// EmailRepositoryInterface is the delivery ledger. Update is an optimistic
// write: it fails with a ConflictError when the stored version moved on.
type EmailRepositoryInterface interface {
	Create(ctx context.Context, e *model.Email) error
	Update(ctx context.Context, e *model.Email) error
	GetByID(ctx context.Context, id int64) (*model.Email, error)
	GetByTrackingToken(ctx context.Context, token string) (*model.Email, error)
	ListFailedSince(ctx context.Context, since time.Time) ([]*model.Email, error)
	ListRecent(ctx context.Context, limit int) ([]*model.Email, error)
	ListByCampaign(ctx context.Context, campaignID int64) ([]*model.Email, error)
	ListByContact(ctx context.Context, contactID int64) ([]*model.Email, error)
	CampaignStats(ctx context.Context, campaignID int64) (*model.CampaignStats, error)
	MonthlyCounts(ctx context.Context, since time.Time) ([]model.MonthlyCount, error)
}

type EmailRepository struct {
	DB *sql.DB
}

const emailColumns = `id, campaign_id, contact_id, template_id, recipient_email, subject, content,
    status, tracking_id, error_message, sent_at, opened_at, clicked_at, created_at, updated_at, version`

func (r *EmailRepository) Create(ctx context.Context, e *model.Email) error {
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.Version = 0

	query := `
        INSERT INTO emails
        (campaign_id, contact_id, template_id, recipient_email, subject, content,
         status, tracking_id, error_message, sent_at, created_at, updated_at, version)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0)
        RETURNING id
    `
	err := r.DB.QueryRowContext(ctx, query,
		e.CampaignID, e.ContactID, e.TemplateID,
		nullString(e.RecipientEmail), nullString(e.Subject), nullString(e.Content),
		string(e.Status), e.TrackingToken, e.ErrorMessage, e.SentAt,
		e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return appErrors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *EmailRepository) Update(ctx context.Context, e *model.Email) error {
	updatedAt := time.Now()
	query := `
        UPDATE emails
        SET recipient_email=$1, subject=$2, content=$3, status=$4, error_message=$5,
            sent_at=$6, opened_at=$7, clicked_at=$8, updated_at=$9, version=version+1
        WHERE id=$10 AND version=$11
    `
	res, err := r.DB.ExecContext(ctx, query,
		nullString(e.RecipientEmail), nullString(e.Subject), nullString(e.Content),
		string(e.Status), e.ErrorMessage, e.SentAt, e.OpenedAt, e.ClickedAt,
		updatedAt, e.ID, e.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var version int64
		err := r.DB.QueryRowContext(ctx, `SELECT version FROM emails WHERE id=$1`, e.ID).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.NewNotFound("email", e.ID)
		}
		if err != nil {
			return err
		}
		return appErrors.NewConflict(e.ID, e.Version)
	}
	e.Version++
	e.UpdatedAt = updatedAt
	return nil
}

func (r *EmailRepository) GetByID(ctx context.Context, id int64) (*model.Email, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE id=$1`, id)
	e, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewNotFound("email", id)
	}
	return e, err
}

func (r *EmailRepository) GetByTrackingToken(ctx context.Context, token string) (*model.Email, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE tracking_id=$1`, token)
	e, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewNotFound("email", token)
	}
	return e, err
}

func (r *EmailRepository) ListFailedSince(ctx context.Context, since time.Time) ([]*model.Email, error) {
	return r.list(ctx, `SELECT `+emailColumns+` FROM emails
        WHERE status=$1 AND created_at >= $2 ORDER BY created_at`, string(model.StatusFailed), since)
}

func (r *EmailRepository) ListRecent(ctx context.Context, limit int) ([]*model.Email, error) {
	return r.list(ctx, `SELECT `+emailColumns+` FROM emails ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

func (r *EmailRepository) ListByCampaign(ctx context.Context, campaignID int64) ([]*model.Email, error) {
	return r.list(ctx, `SELECT `+emailColumns+` FROM emails WHERE campaign_id=$1 ORDER BY id`, campaignID)
}

func (r *EmailRepository) ListByContact(ctx context.Context, contactID int64) ([]*model.Email, error) {
	return r.list(ctx, `SELECT `+emailColumns+` FROM emails WHERE contact_id=$1 ORDER BY id`, contactID)
}

func (r *EmailRepository) CampaignStats(ctx context.Context, campaignID int64) (*model.CampaignStats, error) {
	query := `
        SELECT
            COUNT(*) FILTER (WHERE status IN ('SENT', 'DELIVERED', 'OPENED', 'CLICKED')),
            COUNT(*) FILTER (WHERE status = 'DELIVERED'),
            COUNT(*) FILTER (WHERE status IN ('OPENED', 'CLICKED')),
            COUNT(*) FILTER (WHERE status = 'CLICKED'),
            COUNT(*) FILTER (WHERE status = 'FAILED')
        FROM emails
        WHERE campaign_id = $1
    `
	s := &model.CampaignStats{CampaignID: campaignID}
	err := r.DB.QueryRowContext(ctx, query, campaignID).Scan(&s.Sent, &s.Delivered, &s.Opened, &s.Clicked, &s.Failed)
	if err != nil {
		return nil, err
	}
	withRates(s)
	return s, nil
}

func (r *EmailRepository) MonthlyCounts(ctx context.Context, since time.Time) ([]model.MonthlyCount, error) {
	query := `
        SELECT EXTRACT(MONTH FROM created_at)::integer AS month,
            COUNT(*) FILTER (WHERE status IN ('SENT', 'DELIVERED', 'OPENED', 'CLICKED')),
            COUNT(*) FILTER (WHERE status IN ('OPENED', 'CLICKED')),
            COUNT(*) FILTER (WHERE status = 'CLICKED')
        FROM emails
        WHERE created_at >= $1
        GROUP BY month
        ORDER BY month
    `
	rows, err := r.DB.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []model.MonthlyCount{}
	for rows.Next() {
		var c model.MonthlyCount
		if err := rows.Scan(&c.Month, &c.Sent, &c.Opened, &c.Clicked); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *EmailRepository) list(ctx context.Context, query string, args ...any) ([]*model.Email, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []*model.Email{}
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(row rowScanner) (*model.Email, error) {
	var (
		e                           model.Email
		status                      string
		recipient, subject, content sql.NullString
		errMsg                      sql.NullString
		sentAt, openedAt, clickedAt sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.CampaignID, &e.ContactID, &e.TemplateID,
		&recipient, &subject, &content, &status, &e.TrackingToken, &errMsg,
		&sentAt, &openedAt, &clickedAt, &e.CreatedAt, &e.UpdatedAt, &e.Version,
	)
	if err != nil {
		return nil, err
	}
	e.Status = model.EmailStatus(status)
	e.RecipientEmail = recipient.String
	e.Subject = subject.String
	e.Content = content.String
	if errMsg.Valid {
		e.ErrorMessage = &errMsg.String
	}
	e.SentAt = timePtr(sentAt)
	e.OpenedAt = timePtr(openedAt)
	e.ClickedAt = timePtr(clickedAt)
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

// withRates fills the open and click rates as percentages of sent.
func withRates(s *model.CampaignStats) {
	if s.Sent == 0 {
		return
	}
	s.OpenRate = float64(s.Opened) / float64(s.Sent) * 100
	s.ClickRate = float64(s.Clicked) / float64(s.Sent) * 100
}

var _ EmailRepositoryInterface = (*EmailRepository)(nil)
