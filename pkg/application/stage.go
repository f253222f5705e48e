package application

import (
	"fmt"

	"github.com/etabotai/etabot/pkg/domain/predict"
	"github.com/etabotai/etabot/pkg/domain/project"
	"github.com/etabotai/etabot/pkg/domain/report"
	"github.com/etabotai/etabot/pkg/domain/tms"
)

// StageStatus classifies how a stage ended.
type StageStatus int

const (
	StatusOK StageStatus = iota
	StatusDegraded
	StatusFatal
)

func (s StageStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	case StatusFatal:
		return "fatal"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StageResult is the outcome of one stage. Degraded results carry a usable
// Value and the reasons it is incomplete; fatal results carry Err.
type StageResult[T any] struct {
	Value   T
	Status  StageStatus
	Reasons []string
	Err     error
}

// OK wraps a complete value.
func OK[T any](v T) StageResult[T] {
	return StageResult[T]{Value: v, Status: StatusOK}
}

// Degraded wraps a usable value with the reasons it is incomplete. With no
// reasons it is OK.
func Degraded[T any](v T, reasons ...string) StageResult[T] {
	if len(reasons) == 0 {
		return OK(v)
	}
	return StageResult[T]{Value: v, Status: StatusDegraded, Reasons: reasons}
}

// Fatal wraps an error that ends the run.
func Fatal[T any](err error) StageResult[T] {
	return StageResult[T]{Status: StatusFatal, Err: err}
}

// ConnectOutput is produced by the init stage.
type ConnectOutput struct {
	Handle tms.Handle
	// Projects are the stored projects to process, refreshed with the
	// source system's attributes, keyed by name.
	Projects map[string]*project.Project
	Names    []string
}

// VelocityOutput is produced by the velocities stage.
type VelocityOutput struct {
	Projects map[string]*project.Project
}

// EstimateOutput is produced by the estimates stage.
type EstimateOutput struct {
	Estimates predict.Estimates
}

// BuildOutput is produced by the reports stage.
type BuildOutput struct {
	Trees map[string]*report.Node
}

// EmailOutput is produced by the email stage.
type EmailOutput struct {
	Sent bool
	Err  error
	// FullReport is the composed HTML covering every project of the run.
	FullReport string
}

// PersistOutput is produced by the persist stage.
type PersistOutput struct {
	Saved  []string
	Errors map[string]error
}
