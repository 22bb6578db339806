// Package mail delivers composed messages over a mail transport.
package mail

import (
	"context"
	"errors"
)

var (
	ErrSendFailed  = errors.New("mail: send failed")
	ErrNoRecipient = errors.New("mail: no recipient")
)

type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Headers map[string]string
	// TrackingToken correlates the provider's receipt with a ledger row.
	TrackingToken string
}

// Transport sends one message. Implementations block until the provider
// accepts or rejects the message.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}
