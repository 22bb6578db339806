// internal/model/email.go
package model

import (
	"errors"
	"fmt"
	"time"
)

type EmailStatus string

const (
	StatusPending   EmailStatus = "PENDING"
	StatusSent      EmailStatus = "SENT"
	StatusDelivered EmailStatus = "DELIVERED" // no transition produces it yet
	StatusOpened    EmailStatus = "OPENED"
	StatusClicked   EmailStatus = "CLICKED"
	StatusFailed    EmailStatus = "FAILED"
)

// ErrTransitionDenied is returned when a status change is not allowed from the current state.
var ErrTransitionDenied = errors.New("status transition denied")

func (s EmailStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusOpened, StatusClicked, StatusFailed:
		return true
	}
	return false
}

// Reached reports whether the email has been handed to the transport successfully.
func (s EmailStatus) Reached() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusOpened, StatusClicked:
		return true
	}
	return false
}

// Email is one row of the delivery ledger. A row is created once per pipeline
// invocation and retries mutate it in place.
type Email struct {
	ID             int64       `db:"id" json:"id"`
	CampaignID     int64       `db:"campaign_id" json:"campaignId"`
	ContactID      int64       `db:"contact_id" json:"contactId"`
	TemplateID     int64       `db:"template_id" json:"templateId"`
	RecipientEmail string      `db:"recipient_email" json:"recipientEmail,omitempty"`
	Subject        string      `db:"subject" json:"subject,omitempty"`
	Content        string      `db:"content" json:"content,omitempty"`
	Status         EmailStatus `db:"status" json:"status"`
	TrackingToken  string      `db:"tracking_id" json:"trackingId"`
	ErrorMessage   *string     `db:"error_message" json:"errorMessage,omitempty"`
	SentAt         *time.Time  `db:"sent_at" json:"sentAt,omitempty"`
	OpenedAt       *time.Time  `db:"opened_at" json:"openedAt,omitempty"`
	ClickedAt      *time.Time  `db:"clicked_at" json:"clickedAt,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updatedAt"`
	Version        int64       `db:"version" json:"version"`
}

func denied(from, to EmailStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrTransitionDenied, from, to)
}

// MarkPending moves a failed row back into flight for a retry.
func (e *Email) MarkPending() error {
	if e.Status != StatusFailed && e.Status != "" {
		return denied(e.Status, StatusPending)
	}
	e.Status = StatusPending
	e.ErrorMessage = nil
	e.SentAt = nil
	return nil
}

func (e *Email) MarkSent(at time.Time) error {
	if e.Status != StatusPending {
		return denied(e.Status, StatusSent)
	}
	e.Status = StatusSent
	e.SentAt = &at
	e.ErrorMessage = nil
	return nil
}

// MarkFailed is allowed on a new record, a pending one, or an already failed one
// whose error text is refreshed by a retry.
func (e *Email) MarkFailed(reason string) error {
	switch e.Status {
	case "", StatusPending, StatusFailed:
	default:
		return denied(e.Status, StatusFailed)
	}
	e.Status = StatusFailed
	e.ErrorMessage = &reason
	e.SentAt = nil
	return nil
}

// MarkOpened returns false when the email was already opened or clicked.
func (e *Email) MarkOpened(at time.Time) (bool, error) {
	switch e.Status {
	case StatusOpened, StatusClicked:
		return false, nil
	case StatusSent, StatusDelivered:
	default:
		return false, denied(e.Status, StatusOpened)
	}
	e.Status = StatusOpened
	e.OpenedAt = &at
	return true, nil
}

// MarkClicked overwrites clickedAt on every call.
func (e *Email) MarkClicked(at time.Time) error {
	if !e.Status.Reached() {
		return denied(e.Status, StatusClicked)
	}
	e.Status = StatusClicked
	e.ClickedAt = &at
	return nil
}

func (e *Email) ErrorText() string {
	if e.ErrorMessage == nil {
		return ""
	}
	return *e.ErrorMessage
}
