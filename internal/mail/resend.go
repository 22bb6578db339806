package mail

import (
	"context"
	"errors"

	"github.com/resend/resend-go/v3"
)

type ResendTransport struct {
	client *resend.Client
	from   string
}

func NewResendTransport(apiKey, from string) *ResendTransport {
	return &ResendTransport{client: resend.NewClient(apiKey), from: from}
}

func (t *ResendTransport) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}
	from := msg.From
	if from == "" {
		from = t.from
	}

	req := &resend.SendEmailRequest{
		From:    from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Headers: msg.Headers,
	}
	if msg.TrackingToken != "" {
		req.Tags = []resend.Tag{{Name: "tracking_id", Value: msg.TrackingToken}}
	}

	if _, err := t.client.Emails.SendWithContext(ctx, req); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}
