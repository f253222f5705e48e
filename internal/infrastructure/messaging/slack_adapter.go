package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/etabotai/etabot/pkg/domain/messaging"
)

// SlackAdapter posts the plain-text digest of a report to a Slack incoming
// webhook URL. Options["channel"] overrides the webhook's default channel.
type SlackAdapter struct {
	config messaging.AdapterConfig
	client *http.Client
}

// NewSlackAdapter creates a Slack adapter from config.
func NewSlackAdapter(config messaging.AdapterConfig) *SlackAdapter {
	return &SlackAdapter{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *SlackAdapter) Name() string { return a.config.Name }
func (a *SlackAdapter) Type() string { return "slack" }

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackPayload struct {
	Channel string       `json:"channel,omitempty"`
	Text    string       `json:"text"`
	Blocks  []slackBlock `json:"blocks"`
}

func (a *SlackAdapter) Send(ctx context.Context, msg messaging.Message) error {
	body, err := json.Marshal(slackMessage(msg, a.config.Options["channel"]))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

// slackMessage lays the digest out as a header, one bullet per project line
// and a context line naming the run.
func slackMessage(msg messaging.Message, channel string) slackPayload {
	p := slackPayload{
		Channel: channel,
		Text:    msg.Subject,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: msg.Subject}},
		},
	}
	var bullets []string
	for _, line := range strings.Split(msg.Summary, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			bullets = append(bullets, "• "+line)
		}
	}
	if len(bullets) > 0 {
		digest := strings.Join(bullets, "\n")
		p.Text = msg.Subject + "\n" + digest
		p.Blocks = append(p.Blocks, slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: digest}})
	}
	if msg.RunID != "" {
		p.Blocks = append(p.Blocks, slackBlock{
			Type:     "context",
			Elements: []slackText{{Type: "mrkdwn", Text: "run `" + msg.RunID + "`"}},
		})
	}
	return p
}
