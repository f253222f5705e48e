package messaging_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/etabotai/etabot/internal/infrastructure/messaging"
	domainmsg "github.com/etabotai/etabot/pkg/domain/messaging"
)

type recordingAdapter struct {
	name  string
	fails int
	sent  []domainmsg.Message
}

func (a *recordingAdapter) Name() string { return a.name }
func (a *recordingAdapter) Type() string { return "recording" }

func (a *recordingAdapter) Send(_ context.Context, msg domainmsg.Message) error {
	if a.fails > 0 {
		a.fails--
		return errors.New("temporary failure")
	}
	a.sent = append(a.sent, msg)
	return nil
}

func TestRegistry_CreatesAdapters(t *testing.T) {
	config := &domainmsg.MessagingConfig{
		Adapters: []domainmsg.AdapterConfig{
			{Name: "webhook1", Type: "webhook", URL: "http://example.com", Enabled: true},
			{Name: "slack1", Type: "slack", URL: "http://slack.com/hook", Enabled: true},
			{Name: "mail", Type: "smtp", URL: "localhost:25", Enabled: true},
			{Name: "disk", Type: "file", URL: t.TempDir(), Enabled: true},
			{Name: "disabled", Type: "webhook", URL: "http://disabled.com", Enabled: false},
		},
	}

	registry, err := messaging.NewRegistry(config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	adapters := registry.Adapters()
	if len(adapters) != 4 {
		t.Errorf("expected 4 enabled adapters, got %d", len(adapters))
	}
	if adapters[2].Type() != "smtp" {
		t.Errorf("expected wrapped adapter to keep its type, got %q", adapters[2].Type())
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	config := &domainmsg.MessagingConfig{
		Adapters: []domainmsg.AdapterConfig{
			{Name: "bad", Type: "unknown", URL: "http://example.com", Enabled: true},
		},
	}

	if _, err := messaging.NewRegistry(config); err == nil {
		t.Error("expected error for unknown adapter type")
	}
}

func TestRegistry_NilConfig(t *testing.T) {
	registry, err := messaging.NewRegistry(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(registry.Adapters()) != 0 {
		t.Errorf("expected 0 adapters for nil config")
	}
	if err := registry.Send(context.Background(), testMessage()); !errors.Is(err, messaging.ErrNoAdapters) {
		t.Errorf("Send() error = %v, want ErrNoAdapters", err)
	}
}

func TestRegistry_SendFillsDefaultsAndJoinsErrors(t *testing.T) {
	ok := &recordingAdapter{name: "ok"}
	broken := &recordingAdapter{name: "broken", fails: 10}
	registry, err := messaging.NewRegistry(
		&domainmsg.MessagingConfig{From: "bot@example.test", To: []string{"team@example.test"}},
		messaging.WithAdapters(ok, broken),
	)
	if err != nil {
		t.Fatal(err)
	}

	err = registry.Send(context.Background(), domainmsg.Message{Subject: "s", HTMLBody: "b"})
	if !errors.Is(err, domainmsg.ErrTransport) {
		t.Fatalf("Send() error = %v, want ErrTransport", err)
	}
	var te *domainmsg.TransportError
	if !errors.As(err, &te) || te.Adapter != "broken" {
		t.Errorf("error = %#v", err)
	}
	if len(ok.sent) != 1 {
		t.Fatalf("ok adapter got %d messages", len(ok.sent))
	}
	if ok.sent[0].From != "bot@example.test" || ok.sent[0].To[0] != "team@example.test" {
		t.Errorf("defaults not applied: %+v", ok.sent[0])
	}
}

func TestResilientAdapter_Retries(t *testing.T) {
	flaky := &recordingAdapter{name: "flaky", fails: 2}
	adapter := messaging.NewResilientAdapter(flaky, 3, time.Millisecond)

	if err := adapter.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(flaky.sent) != 1 {
		t.Errorf("sent = %d, want 1", len(flaky.sent))
	}
	if adapter.Name() != "flaky" {
		t.Errorf("Name() = %q", adapter.Name())
	}

	dead := &recordingAdapter{name: "dead", fails: 5}
	if err := messaging.NewResilientAdapter(dead, 2, time.Millisecond).Send(context.Background(), testMessage()); err == nil {
		t.Error("expected error after exhausting attempts")
	}
}

func TestFileAdapter_WritesReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	adapter := messaging.NewFileAdapter(domainmsg.AdapterConfig{Name: "disk", URL: dir})

	if err := adapter.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "run-1.html"))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if string(data) != "<h1>Buckwheat</h1>" {
		t.Errorf("content = %q", data)
	}
}
