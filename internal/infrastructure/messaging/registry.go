package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/etabotai/etabot/pkg/domain/messaging"
)

// ErrNoAdapters is returned by Send when no adapter is enabled.
var ErrNoAdapters = errors.New("no messaging adapters enabled")

// Registry creates messaging adapters from configuration and fans messages
// out to all of them.
type Registry struct {
	adapters []messaging.MessageAdapter
	from     string
	to       []string
	logger   *slog.Logger
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used to report per-adapter failures.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithAdapters appends already constructed adapters.
func WithAdapters(adapters ...messaging.MessageAdapter) RegistryOption {
	return func(r *Registry) { r.adapters = append(r.adapters, adapters...) }
}

// NewRegistry creates adapters from a MessagingConfig. Each adapter is
// retried up to the "attempts" option (default 3).
func NewRegistry(config *messaging.MessagingConfig, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{logger: slog.Default()}
	if config != nil {
		r.from = config.From
		r.to = append([]string(nil), config.To...)
		for _, cfg := range config.Adapters {
			if !cfg.Enabled {
				continue
			}

			adapter, err := createAdapter(cfg)
			if err != nil {
				return nil, fmt.Errorf("create adapter %q: %w", cfg.Name, err)
			}
			r.adapters = append(r.adapters, NewResilientAdapter(adapter, attempts(cfg), 500*time.Millisecond))
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Adapters returns all active adapters.
func (r *Registry) Adapters() []messaging.MessageAdapter {
	return r.adapters
}

// Send delivers msg through every adapter. Default sender and recipients
// from config fill in empty fields. The returned error joins one
// *messaging.TransportError per failed adapter.
func (r *Registry) Send(ctx context.Context, msg messaging.Message) error {
	if len(r.adapters) == 0 {
		return ErrNoAdapters
	}
	if msg.From == "" {
		msg.From = r.from
	}
	if len(msg.To) == 0 {
		msg.To = r.to
	}

	var errs []error
	for _, a := range r.adapters {
		if err := a.Send(ctx, msg); err != nil {
			r.logger.Warn("message delivery failed",
				"adapter", a.Name(),
				"type", a.Type(),
				"run_id", msg.RunID,
				"error", err)
			errs = append(errs, &messaging.TransportError{Adapter: a.Name(), Err: err})
			continue
		}
		r.logger.Info("message delivered", "adapter", a.Name(), "run_id", msg.RunID)
	}
	return errors.Join(errs...)
}

func createAdapter(cfg messaging.AdapterConfig) (messaging.MessageAdapter, error) {
	switch cfg.Type {
	case "smtp":
		return NewSMTPAdapter(cfg), nil
	case "webhook":
		return NewWebhookAdapter(cfg), nil
	case "slack":
		return NewSlackAdapter(cfg), nil
	case "file":
		return NewFileAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown adapter type: %s", cfg.Type)
	}
}

func attempts(cfg messaging.AdapterConfig) int {
	var n int
	if _, err := fmt.Sscanf(cfg.Options["attempts"], "%d", &n); err != nil || n < 1 {
		return 3
	}
	return n
}
