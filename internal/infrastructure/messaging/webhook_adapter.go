// Package messaging provides the mail, webhook and chat channels reports are
// delivered through.
package messaging

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/etabotai/etabot/pkg/domain/messaging"
)

// SignatureHeader carries the HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Etabot-Signature"

// EventReportReady is the only event the webhook adapter emits.
const EventReportReady = "report.ready"

// ReportEvent is the JSON body posted to webhook receivers.
type ReportEvent struct {
	Event     string    `json:"event"`
	RunID     string    `json:"run_id"`
	Subject   string    `json:"subject"`
	From      string    `json:"from,omitempty"`
	To        []string  `json:"to,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	HTML      string    `json:"html"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookAdapter posts rendered reports to a generic webhook URL.
type WebhookAdapter struct {
	config messaging.AdapterConfig
	client *http.Client
	now    func() time.Time
}

// NewWebhookAdapter creates a webhook adapter from config.
func NewWebhookAdapter(config messaging.AdapterConfig) *WebhookAdapter {
	return &WebhookAdapter{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (a *WebhookAdapter) Name() string { return a.config.Name }
func (a *WebhookAdapter) Type() string { return "webhook" }

func (a *WebhookAdapter) Send(ctx context.Context, msg messaging.Message) error {
	body, err := json.Marshal(ReportEvent{
		Event:     EventReportReady,
		RunID:     msg.RunID,
		Subject:   msg.Subject,
		From:      msg.From,
		To:        msg.To,
		Summary:   msg.Summary,
		HTML:      msg.HTMLBody,
		Timestamp: a.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Etabot-Messaging/1.0")
	if a.config.Secret != "" {
		req.Header.Set(SignatureHeader, sign(body, a.config.Secret))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// VerifySignature reports whether header is the signature of body under secret.
func VerifySignature(body []byte, secret, header string) bool {
	return hmac.Equal([]byte(sign(body, secret)), []byte(header))
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
