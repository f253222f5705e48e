package project

import (
	"errors"
	"fmt"
)

// Domain errors for stored projects and credentials.
var (
	// ErrProjectNotFound indicates the store has no such project.
	ErrProjectNotFound = errors.New("project not found")

	// ErrTokenNotFound indicates no token matched the lookup.
	ErrTokenNotFound = errors.New("token not found")

	// ErrAmbiguousMatch indicates a lookup that must match at most one
	// record matched several.
	ErrAmbiguousMatch = errors.New("ambiguous match")

	// ErrInvalidProject indicates a project failed validation.
	ErrInvalidProject = errors.New("invalid project")
)

// AmbiguousMatchError reports how many records matched a lookup.
type AmbiguousMatchError struct {
	Filter  string
	Matches int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("lookup %s matched %d records, want at most one", e.Filter, e.Matches)
}

// Is allows errors.Is to work with AmbiguousMatchError.
func (e *AmbiguousMatchError) Is(target error) bool {
	return target == ErrAmbiguousMatch
}

// ValidationError names the offending project field.
type ValidationError struct {
	Project string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return "project " + e.Project + ": " + e.Field + " " + e.Reason
}

// Is allows errors.Is to work with ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidProject
}
