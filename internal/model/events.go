// internal/model/events.go
package model

import "time"

// ContactTaggedEvent is published upstream when a contact acquires a tag.
type ContactTaggedEvent struct {
	ContactID    int64     `json:"contactId"`
	ContactEmail string    `json:"contactEmail"`
	Tag          string    `json:"tag"`
	Timestamp    time.Time `json:"timestamp"`
}

type TriggerEvent struct {
	CampaignID int64     `json:"campaignId"`
	ContactID  int64     `json:"contactId"`
	TemplateID int64     `json:"templateId"`
	EventID    string    `json:"eventId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// StatusEvent is emitted on every status change observed downstream.
// Consumers dedupe on (RecordID, Status).
type StatusEvent struct {
	RecordID      int64             `json:"recordId"`
	TrackingToken string            `json:"trackingId"`
	Status        EmailStatus       `json:"status"`
	Timestamp     time.Time         `json:"timestamp"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type CampaignStats struct {
	CampaignID int64   `json:"campaignId"`
	Sent       int64   `json:"sent"`
	Delivered  int64   `json:"delivered"`
	Opened     int64   `json:"opened"`
	Clicked    int64   `json:"clicked"`
	Failed     int64   `json:"failed"`
	OpenRate   float64 `json:"openRate"`
	ClickRate  float64 `json:"clickRate"`
}

// MonthlyCount is one bucket of the analytics series.
type MonthlyCount struct {
	Month   int   `json:"month"`
	Sent    int64 `json:"sent"`
	Opened  int64 `json:"opened"`
	Clicked int64 `json:"clicked"`
}
