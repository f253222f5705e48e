package messaging

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/etabotai/etabot/pkg/domain/messaging"
)

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPAdapter sends reports as HTML email. The adapter URL is the server's
// host:port; options "username" and "password" enable PLAIN auth.
type SMTPAdapter struct {
	config   messaging.AdapterConfig
	sendMail SendMailFunc
	now      func() time.Time
}

// NewSMTPAdapter creates an SMTP adapter from config.
func NewSMTPAdapter(config messaging.AdapterConfig) *SMTPAdapter {
	return &SMTPAdapter{config: config, sendMail: smtp.SendMail, now: time.Now}
}

// WithSendMail replaces the function that talks to the server.
func (a *SMTPAdapter) WithSendMail(fn SendMailFunc) *SMTPAdapter {
	a.sendMail = fn
	return a
}

func (a *SMTPAdapter) Name() string { return a.config.Name }
func (a *SMTPAdapter) Type() string { return "smtp" }

func (a *SMTPAdapter) Send(ctx context.Context, msg messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients")
	}
	if msg.From == "" {
		msg.From = a.config.Options["from"]
	}

	var auth smtp.Auth
	if user := a.config.Options["username"]; user != "" {
		host, _, err := net.SplitHostPort(a.config.URL)
		if err != nil {
			return fmt.Errorf("parse smtp address %q: %w", a.config.URL, err)
		}
		auth = smtp.PlainAuth("", user, a.config.Options["password"], host)
	}

	if err := a.sendMail(a.config.URL, auth, msg.From, msg.To, a.compose(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (a *SMTPAdapter) compose(msg messaging.Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", a.now().UTC().Format(time.RFC1123Z))
	if msg.RunID != "" {
		fmt.Fprintf(&b, "X-Etabot-Run: %s\r\n", msg.RunID)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(msg.HTMLBody)
	return b.Bytes()
}
