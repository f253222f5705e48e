package messaging

import (
	"errors"
	"testing"
)

func TestTransportError(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&TransportError{Adapter: "smtp-main", Err: cause})

	if !errors.Is(err, ErrTransport) {
		t.Error("errors.Is(err, ErrTransport) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("cause not unwrapped")
	}
	if err.Error() != "adapter smtp-main: connection reset" {
		t.Errorf("Error() = %q", err.Error())
	}
}
