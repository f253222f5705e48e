// Package messaging defines the outbound channels that deliver rendered
// reports to people.
package messaging

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransport indicates a message could not be handed to its transport.
var ErrTransport = errors.New("message transport failed")

// Message is one rendered report ready for delivery.
type Message struct {
	From     string
	To       []string
	Subject  string
	HTMLBody string
	// Summary is a plain-text digest for channels that cannot show HTML.
	Summary string
	// RunID ties the message to the estimation run that produced it.
	RunID string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MessageAdapter is a named, configured Mailer.
type MessageAdapter interface {
	Mailer
	Name() string
	Type() string
}

// TransportError wraps a failure from one adapter.
type TransportError struct {
	Adapter string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("adapter %s: %v", e.Adapter, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is allows errors.Is to work with TransportError.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// AdapterConfig defines configuration for a messaging adapter.
type AdapterConfig struct {
	Name    string            `yaml:"name" json:"name"`
	Type    string            `yaml:"type" json:"type"` // "smtp", "webhook"
	URL     string            `yaml:"url" json:"url"`   // webhook URL or smtp host:port
	Secret  string            `yaml:"secret,omitempty" json:"secret,omitempty"`
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Options map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// MessagingConfig holds all configured messaging adapters.
type MessagingConfig struct {
	From     string          `yaml:"from" json:"from"`
	To       []string        `yaml:"to" json:"to"`
	Adapters []AdapterConfig `yaml:"adapters" json:"adapters"`
}
