package report

import (
	"errors"
	"fmt"
)

// Domain errors for report construction and serialization.
var (
	// ErrInvariant indicates a programming error: a report tree holds
	// something other than a well-formed BasicReport.
	ErrInvariant = errors.New("report invariant violated")

	// ErrMissingField indicates a required BasicReport field was not supplied.
	ErrMissingField = errors.New("required report field missing")

	// ErrStatsFrozen indicates a record was added to stats already attached to a report.
	ErrStatsFrozen = errors.New("stats are attached to a report and can no longer change")

	// ErrCycle indicates AddChild would make the tree cyclic.
	ErrCycle = errors.New("node would create a cycle")

	// ErrAlreadyParented indicates the node already belongs to another parent.
	ErrAlreadyParented = errors.New("node already has a parent")

	// ErrNilNode indicates a nil node was passed to AddChild.
	ErrNilNode = errors.New("nil node")

	// ErrInvalidVelocityReport indicates a velocity report cannot be serialized.
	ErrInvalidVelocityReport = errors.New("invalid velocity report")

	// ErrInvalidSerialized indicates a deserialized report does not match the report schema.
	ErrInvalidSerialized = errors.New("serialized report is invalid")
)

// InvariantError names the node whose report broke the tree invariants.
type InvariantError struct {
	EntityID string
	Reason   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("report node %q: %s", e.EntityID, e.Reason)
}

// Is allows errors.Is to work with InvariantError.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}

// FieldError names the missing BasicReport field.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return "basic report: " + e.Field + " is required"
}

// Is allows errors.Is to work with FieldError.
func (e *FieldError) Is(target error) bool {
	return target == ErrMissingField
}
