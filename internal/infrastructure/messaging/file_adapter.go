package messaging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/etabotai/etabot/pkg/domain/messaging"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileAdapter writes each message as an HTML file into the directory named
// by the adapter URL. Useful for local runs without a mail server.
type FileAdapter struct {
	config messaging.AdapterConfig
	now    func() time.Time
}

// NewFileAdapter creates a file adapter from config.
func NewFileAdapter(config messaging.AdapterConfig) *FileAdapter {
	return &FileAdapter{config: config, now: time.Now}
}

func (a *FileAdapter) Name() string { return a.config.Name }
func (a *FileAdapter) Type() string { return "file" }

func (a *FileAdapter) Send(ctx context.Context, msg messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(a.config.URL, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	id := msg.RunID
	if id == "" {
		id = a.now().UTC().Format("20060102T150405Z")
	}
	name := unsafeFileChars.ReplaceAllString(id, "_") + ".html"
	if err := os.WriteFile(filepath.Join(a.config.URL, name), []byte(msg.HTMLBody), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
