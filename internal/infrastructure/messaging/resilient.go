package messaging

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/etabotai/etabot/pkg/domain/messaging"
)

// ResilientAdapter retries a flaky adapter with exponential backoff.
type ResilientAdapter struct {
	inner messaging.MessageAdapter
	cfg   retry.Config
}

// NewResilientAdapter wraps inner with the given number of attempts.
func NewResilientAdapter(inner messaging.MessageAdapter, attempts int, initialDelay time.Duration) *ResilientAdapter {
	if attempts < 1 {
		attempts = 1
	}
	return &ResilientAdapter{
		inner: inner,
		cfg: retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  initialDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

func (a *ResilientAdapter) Name() string { return a.inner.Name() }
func (a *ResilientAdapter) Type() string { return a.inner.Type() }

func (a *ResilientAdapter) Send(ctx context.Context, msg messaging.Message) error {
	r := retry.New[struct{}](a.cfg)
	_, err := r.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.inner.Send(ctx, msg)
	})
	return err
}
