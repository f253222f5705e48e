// Package predict is the built-in prediction engine. It measures velocity
// from completed work per sprint and projects completion dates for open
// tasks by working through each assignee's queue at that velocity.
package predict

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/etabotai/etabot/pkg/domain/analytics"
	domain "github.com/etabotai/etabot/pkg/domain/predict"
	"github.com/etabotai/etabot/pkg/domain/report"
	"github.com/etabotai/etabot/pkg/domain/tms"
)

// Config tunes the engine.
type Config struct {
	// SprintLength converts per-sprint throughput into points per day.
	SprintLength time.Duration
	// Grace is the default tolerance between due date and ETA.
	Grace time.Duration
	// Velocities overrides the measured velocity of a project, points per day.
	Velocities map[string]float64
	// DefaultPoints sizes tasks without an estimate.
	DefaultPoints float64
}

// DefaultConfig returns two-week sprints, a 12h grace period and one point
// per unsized task.
func DefaultConfig() Config {
	return Config{
		SprintLength:  14 * 24 * time.Hour,
		Grace:         12 * time.Hour,
		DefaultPoints: 1,
	}
}

// Engine implements predict.Engine on top of a source-system adapter.
type Engine struct {
	source tms.Adapter
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	handle tms.Handle
}

var _ domain.Engine = (*Engine)(nil)

// NewEngine creates an engine reading task history through source.
func NewEngine(source tms.Adapter, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.SprintLength <= 0 {
		cfg.SprintLength = def.SprintLength
	}
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}
	if cfg.DefaultPoints <= 0 {
		cfg.DefaultPoints = def.DefaultPoints
	}
	return &Engine{source: source, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock replaces the engine's clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) connect(ctx context.Context) (tms.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != nil {
		return e.handle, nil
	}
	h, err := e.source.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	}
	e.handle = h
	return h, nil
}

func (e *Engine) tasks(ctx context.Context, project string) ([]tms.Task, error) {
	h, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}
	return e.source.FetchTasks(ctx, h, project)
}

// EstimateVelocity returns the project velocity in points per day.
func (e *Engine) EstimateVelocity(ctx context.Context, project string) (analytics.Measurement, error) {
	if v, ok := e.cfg.Velocities[project]; ok && v > 0 {
		return analytics.NewMeasurement(v), nil
	}
	tasks, err := e.tasks(ctx, project)
	if err != nil {
		return analytics.Measurement{}, err
	}
	sprints := e.sprints(tasks)
	if len(sprints) == 0 {
		return analytics.Measurement{}, fmt.Errorf("%w: project %s has no completed sprint work", domain.ErrNoVelocity, project)
	}
	return analytics.ComputeVelocityStats(velocities(sprints)).Measurement(), nil
}

// EstimateTasks projects completion dates for the open tasks of projects.
// Tasks whose assignee has no measurable velocity get no estimate.
func (e *Engine) EstimateTasks(ctx context.Context, projects []string) (domain.Estimates, error) {
	now := e.now().UTC()
	out := make(domain.Estimates, len(projects))
	for _, project := range projects {
		tasks, err := e.tasks(ctx, project)
		if err != nil {
			return nil, fmt.Errorf("estimate %s: %w", project, err)
		}
		out[project] = e.estimateProject(project, tasks, now)
	}
	return out, nil
}

func (e *Engine) estimateProject(project string, tasks []tms.Task, now time.Time) map[string]domain.TaskEstimate {
	projectVelocity := 0.0
	if v, ok := e.cfg.Velocities[project]; ok {
		projectVelocity = v
	} else if s := e.sprints(tasks); len(s) > 0 {
		projectVelocity = analytics.ComputeVelocityStats(velocities(s)).Mean
	}

	byAssignee := map[string][]tms.Task{}
	for _, t := range tasks {
		if !t.Done {
			byAssignee[t.Assignee] = append(byAssignee[t.Assignee], t)
		}
	}

	estimates := map[string]domain.TaskEstimate{}
	for assignee, queue := range byAssignee {
		velocity := projectVelocity
		if s := e.sprints(filterAssignee(tasks, assignee)); assignee != "" && len(s) > 0 {
			velocity = analytics.ComputeVelocityStats(velocities(s)).Mean
		}
		if velocity <= 0 {
			e.logger.Debug("no velocity for assignee", "project", project, "assignee", assignee)
			continue
		}

		sortQueue(queue)
		var cumulative float64
		for _, t := range queue {
			cumulative += e.points(t)
			eta := now.Add(time.Duration(cumulative / velocity * float64(24*time.Hour)))
			estimates[t.ID] = domain.TaskEstimate{
				TaskID: t.ID,
				ETA:    &eta,
				Status: report.EvaluateDueDate(t.DueDate, &eta, now, e.cfg.Grace).String(),
			}
		}
	}
	return estimates
}

// VelocityReport returns the sprint history of an entity: the whole project
// for the root, the union of members' tasks otherwise.
func (e *Engine) VelocityReport(ctx context.Context, project string, entity *tms.Entity) (domain.VelocityData, error) {
	tasks, err := e.tasks(ctx, project)
	if err != nil {
		return domain.VelocityData{}, err
	}
	if entity != nil && entity.Kind != tms.KindProject {
		tasks = filterAssignee(tasks, entity.MemberIDs()...)
	}

	sprints := e.sprints(tasks)
	if len(sprints) == 0 {
		name := project
		if entity != nil {
			name = entity.ID
		}
		return domain.VelocityData{}, fmt.Errorf("%w: %s", domain.ErrNoVelocity, name)
	}

	stats := analytics.ComputeVelocityStats(velocities(sprints))
	m := stats.Measurement()

	sprintTable := analytics.Table{Columns: []string{"sprint_id", "scope", "completed", "velocity"}}
	vsTime := analytics.Table{Columns: []string{"sprint_id", "cumulative_completed", "velocity"}}
	var cumulative float64
	for _, s := range sprints {
		cumulative += s.completed
		sprintTable.AppendRow(s.name, num(s.scope), num(s.completed), num(s.velocity))
		vsTime.AppendRow(s.name, num(cumulative), num(s.velocity))
	}
	statTable := analytics.Table{Columns: []string{"mean", "median", "std_dev", "min", "max", "samples"}}
	statTable.AppendRow(num(stats.Mean), num(stats.Median), num(stats.StdDev), num(stats.Min), num(stats.Max), strconv.Itoa(stats.Samples))

	return domain.VelocityData{
		Summary: fmt.Sprintf("%.2f points/day (%.2f to %.2f at %.0f%% confidence) over %d sprints",
			m.Value, m.LowerEstimate(analytics.DefaultConfidence), m.HigherEstimate(analytics.DefaultConfidence),
			analytics.DefaultConfidence*100, stats.Samples),
		SprintStats:    sprintTable,
		VelocityVsTime: vsTime,
		VelocityStats:  statTable,
	}, nil
}

type sprint struct {
	name      string
	scope     float64
	completed float64
	velocity  float64
}

// sprints groups tasks by sprint in first-seen order. Sprints without
// completed work carry no velocity signal and are dropped.
func (e *Engine) sprints(tasks []tms.Task) []sprint {
	index := map[string]int{}
	var out []sprint
	for _, t := range tasks {
		if t.Sprint == "" {
			continue
		}
		i, ok := index[t.Sprint]
		if !ok {
			i = len(out)
			index[t.Sprint] = i
			out = append(out, sprint{name: t.Sprint})
		}
		p := e.points(t)
		out[i].scope += p
		if t.Done {
			out[i].completed += p
		}
	}

	days := e.cfg.SprintLength.Hours() / 24
	kept := out[:0]
	for _, s := range out {
		if s.completed == 0 {
			continue
		}
		s.velocity = s.completed / days
		kept = append(kept, s)
	}
	return kept
}

func (e *Engine) points(t tms.Task) float64 {
	if t.Points > 0 {
		return t.Points
	}
	return e.cfg.DefaultPoints
}

func velocities(sprints []sprint) []float64 {
	out := make([]float64, len(sprints))
	for i, s := range sprints {
		out[i] = s.velocity
	}
	return out
}

func filterAssignee(tasks []tms.Task, assignees ...string) []tms.Task {
	want := make(map[string]bool, len(assignees))
	for _, a := range assignees {
		want[a] = true
	}
	var out []tms.Task
	for _, t := range tasks {
		if want[t.Assignee] {
			out = append(out, t)
		}
	}
	return out
}

// sortQueue orders work by due date, undated work last, then by key.
func sortQueue(queue []tms.Task) {
	sort.SliceStable(queue, func(i, j int) bool {
		a, b := queue[i].DueDate, queue[j].DueDate
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return queue[i].Key < queue[j].Key
	})
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
