package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topics on the message bus.
const (
	TopicContactEvents     = "contact-events"
	TopicCampaignTriggered = "campaign-triggered"
	TopicEmailEvents       = "email-events"
)

type Kind string

const (
	KindContactTagged     Kind = "contact.tagged"
	KindCampaignTriggered Kind = "campaign.triggered"
	KindEmailSent         Kind = "email.sent"
	KindEmailStatus       Kind = "email.status"
)

// Envelope is the wire form of every bus message: a kind tag plus the
// kind-specific payload.
type Envelope struct {
	Kind       Kind            `json:"kind"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(kind Kind, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Envelope{
		Kind:       kind,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Payload:    b,
	}, nil
}

// Decode unmarshals the payload into v after checking the kind tag.
func (e Envelope) Decode(kind Kind, v any) error {
	if e.Kind != kind {
		return fmt.Errorf("%w: want %s, got %q", ErrUnexpectedKind, kind, e.Kind)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
