package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"time"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPTransport struct {
	config SMTPConfig
	now    func() time.Time
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{config: cfg, now: time.Now}
}

func (t *SMTPTransport) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}
	from := msg.From
	if from == "" {
		from = t.config.From
	}

	addr := net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, t.config.Host)
	if err != nil {
		conn.Close()
		return errors.Join(ErrSendFailed, err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.config.Host}); err != nil {
			return errors.Join(ErrSendFailed, err)
		}
	}
	if t.config.Username != "" {
		auth := smtp.PlainAuth("", t.config.Username, t.config.Password, t.config.Host)
		if err := c.Auth(auth); err != nil {
			return errors.Join(ErrSendFailed, err)
		}
	}
	if err := c.Mail(from); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	for _, rcpt := range msg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return errors.Join(ErrSendFailed, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if _, err := w.Write(buildMessage(from, msg, t.now())); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if err := w.Close(); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	return c.Quit()
}

// buildMessage renders an RFC 5322 message with an HTML body.
func buildMessage(from string, msg *Message, now time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	for i, rcpt := range msg.To {
		if i == 0 {
			fmt.Fprintf(&b, "To: %s", rcpt)
		} else {
			fmt.Fprintf(&b, ", %s", rcpt)
		}
	}
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	if msg.TrackingToken != "" {
		fmt.Fprintf(&b, "X-Tracking-ID: %s\r\n", msg.TrackingToken)
	}

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, msg.Headers[k])
	}
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return b.Bytes()
}
