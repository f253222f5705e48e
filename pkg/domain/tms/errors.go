package tms

import "errors"

var (
	// ErrConnection indicates the source system could not be reached or
	// rejected the credentials.
	ErrConnection = errors.New("source system connection failed")

	// ErrProjectNotFound indicates the source system has no such project.
	ErrProjectNotFound = errors.New("project not found in source system")
)

// ConnectionError carries the endpoint that failed.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "cannot connect to " + e.Endpoint
	}
	return "cannot connect to " + e.Endpoint + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is allows errors.Is to work with ConnectionError.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}
