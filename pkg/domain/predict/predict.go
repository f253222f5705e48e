// Package predict defines the prediction engine that turns task history into
// velocities and per-task completion estimates.
package predict

import (
	"context"
	"errors"
	"time"

	"github.com/etabotai/etabot/pkg/domain/analytics"
	"github.com/etabotai/etabot/pkg/domain/tms"
)

var (
	// ErrUnreachable indicates the engine could not be used at all.
	ErrUnreachable = errors.New("prediction engine unreachable")

	// ErrNoVelocity indicates there is not enough history to measure velocity.
	ErrNoVelocity = errors.New("no velocity data")
)

// TaskEstimate is the engine's view of one task.
type TaskEstimate struct {
	TaskID string
	ETA    *time.Time
	// Status is a raw status name, classified later by report.Classify.
	Status string
}

// Estimates maps project name to task ID to estimate. A task without an
// entry had no estimate.
type Estimates map[string]map[string]TaskEstimate

// Lookup returns the estimate for a task of a project.
func (e Estimates) Lookup(project, taskID string) (TaskEstimate, bool) {
	tasks, ok := e[project]
	if !ok {
		return TaskEstimate{}, false
	}
	est, ok := tasks[taskID]
	return est, ok
}

// VelocityData is the tabular velocity history of one entity.
type VelocityData struct {
	Summary        string
	SprintStats    analytics.Table
	VelocityVsTime analytics.Table
	VelocityStats  analytics.Table
}

// Engine produces velocities and estimates.
type Engine interface {
	EstimateVelocity(ctx context.Context, project string) (analytics.Measurement, error)
	EstimateTasks(ctx context.Context, projects []string) (Estimates, error)
	VelocityReport(ctx context.Context, project string, entity *tms.Entity) (VelocityData, error)
}
