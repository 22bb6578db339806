package mail

import (
	"context"

	"go.uber.org/zap"
)

// LogTransport records messages instead of sending them. Used for local runs.
type LogTransport struct {
	log *zap.Logger
}

func NewLogTransport(log *zap.Logger) *LogTransport {
	return &LogTransport{log: log.Named("mail")}
}

func (t *LogTransport) Send(_ context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}
	t.log.Info("📧 email captured",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("tracking_id", msg.TrackingToken),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}

var (
	_ Transport = (*LogTransport)(nil)
	_ Transport = (*SMTPTransport)(nil)
	_ Transport = (*ResendTransport)(nil)
)
