package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/etabotai/etabot/pkg/domain/predict"
	"github.com/etabotai/etabot/pkg/domain/project"
	"github.com/etabotai/etabot/pkg/domain/report"
	"github.com/etabotai/etabot/pkg/domain/tms"
	"github.com/etabotai/etabot/pkg/metrics"
)

// Degradation reasons recorded in metrics and run results.
const (
	reasonVelocityUnavailable = "velocity unavailable"
	reasonHierarchyFailed     = "hierarchy unavailable"
	reasonTasksFailed         = "tasks unavailable"
	reasonReportInvalid       = "report invalid"
	reasonTreeRejected        = "tree rejected child"
	reasonProjectMissing      = "project missing"
)

// ReportBuilder turns one project's hierarchy, tasks and estimates into a
// report tree.
type ReportBuilder struct {
	source     tms.Adapter
	engine     predict.Engine
	renderer   report.Renderer
	classifier *report.Classifier
	logger     *slog.Logger
	now        func() time.Time
}

// NewReportBuilder creates a builder. A nil logger uses slog.Default.
func NewReportBuilder(source tms.Adapter, engine predict.Engine, renderer report.Renderer, logger *slog.Logger) *ReportBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportBuilder{
		source:     source,
		engine:     engine,
		renderer:   renderer,
		classifier: report.NewClassifier(logger),
		logger:     logger,
		now:        time.Now,
	}
}

// Build returns the project's tree and the reasons it is incomplete. It
// never fails: when nothing usable is known the tree is a single
// EmptyReport root.
func (b *ReportBuilder) Build(ctx context.Context, h tms.Handle, p *project.Project, estimates predict.Estimates) (*report.Node, []string) {
	logger := b.logger.With("project", p.Name)

	root, err := b.source.FetchHierarchy(ctx, h, p.Name)
	if err != nil || root == nil {
		logger.Warn("hierarchy could not be fetched", "error", err)
		metrics.RecordDegradedEntity(reasonHierarchyFailed)
		return report.NewNode(report.EmptyReport(p.Name, b.renderer), p.Name), []string{p.Name + ": " + reasonHierarchyFailed}
	}
	tasks, err := b.source.FetchTasks(ctx, h, p.Name)
	if err != nil {
		logger.Warn("tasks could not be fetched", "error", err)
		metrics.RecordDegradedEntity(reasonTasksFailed)
		return report.NewNode(report.EmptyReport(p.Name, b.renderer), root.ID), []string{p.Name + ": " + reasonTasksFailed}
	}

	var reasons []string
	build := func(e *tms.Entity) *report.Node {
		r, reason := b.entityReport(ctx, p, e, e == root, tasks, estimates)
		if reason != "" {
			logger.Warn("entity report degraded", "entity", e.ID, "reason", reason)
			metrics.RecordDegradedEntity(reason)
			reasons = append(reasons, fmt.Sprintf("%s/%s: %s", p.Name, e.ID, reason))
		}
		return report.NewNode(r, e.ID)
	}

	type pending struct {
		entity *tms.Entity
		node   *report.Node
	}
	tree := build(root)
	queue := []pending{{root, tree}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, m := range cur.entity.Members {
			if m == nil {
				continue
			}
			child := build(m)
			if err := cur.node.AddChild(child); err != nil {
				logger.Warn("entity skipped", "entity", m.ID, "parent", cur.entity.ID, "error", err)
				metrics.RecordDegradedEntity(reasonTreeRejected)
				reasons = append(reasons, fmt.Sprintf("%s/%s: %v", p.Name, m.ID, err))
				continue
			}
			queue = append(queue, pending{m, child})
		}
	}
	return tree, reasons
}

// entityReport builds the report of one entity, or its empty placeholder
// with the reason it was substituted.
func (b *ReportBuilder) entityReport(ctx context.Context, p *project.Project, e *tms.Entity, isRoot bool, tasks []tms.Task, estimates predict.Estimates) (*report.BasicReport, string) {
	vd, err := b.engine.VelocityReport(ctx, p.Name, e)
	if err != nil {
		if !errors.Is(err, predict.ErrNoVelocity) {
			b.logger.Warn("velocity report failed", "project", p.Name, "entity", e.ID, "error", err)
		}
		return report.EmptyEntityReport(p.Name, e.ID, e.DisplayName, reasonVelocityUnavailable, b.renderer), reasonVelocityUnavailable
	}

	var id *string
	if !isRoot {
		id = &e.ID
	}
	velocity := report.NewVelocityReport(id, vd.Summary, vd.SprintStats,
		report.WithVelocityVsTime(vd.VelocityVsTime),
		report.WithVelocityStats(vd.VelocityStats),
	)

	due, sprint := b.classifyTasks(p, entityTasks(e, isRoot, tasks), estimates)

	r, err := report.NewBasicReport(report.BasicReportParams{
		Project:           p.Name,
		EntityID:          e.ID,
		EntityDisplayName: e.DisplayName,
		EntityAvatarURLs:  e.AvatarURLs,
		ProjectOnTrack:    due.Overall(),
		DueDatesStats:     due,
		SprintStats:       sprint,
		VelocityReport:    velocity,
		Params:            p.Params(),
		TMSName:           p.TMS,
	}, b.renderer)
	if err != nil {
		return report.EmptyEntityReport(p.Name, e.ID, e.DisplayName, reasonReportInvalid, b.renderer), reasonReportInvalid
	}
	return r, ""
}

// classifyTasks buckets the open tasks by due date and by sprint end.
func (b *ReportBuilder) classifyTasks(p *project.Project, tasks []tms.Task, estimates predict.Estimates) (due, sprint *report.TargetDatesStats) {
	due = report.NewTargetDatesStats()
	sprint = report.NewTargetDatesStats()
	now := b.now()

	for _, t := range tasks {
		if t.Done {
			continue
		}
		eta := t.ETA
		var status report.AlertStatus
		if est, ok := estimates.Lookup(p.Name, t.ID); ok {
			if est.ETA != nil {
				eta = est.ETA
			}
			status = b.classifier.Classify(est.Status)
		} else if eta != nil {
			status = report.EvaluateDueDate(t.DueDate, eta, now, p.Grace())
		} else {
			status = b.classifier.Classify(nil)
		}

		rec := report.TaskRecord{
			ID:       t.ID,
			Key:      t.Key,
			Summary:  t.Summary,
			Assignee: t.Assignee,
			Status:   t.Status,
			Sprint:   t.Sprint,
			DueDate:  t.DueDate,
			ETA:      eta,
			URL:      t.URL,
		}
		if err := due.Record(rec, status); err != nil {
			b.logger.Warn("task not recorded", "task", t.ID, "error", err)
		}
		if t.SprintEnd != nil {
			if err := sprint.Record(rec, report.EvaluateDueDate(t.SprintEnd, eta, now, p.Grace())); err != nil {
				b.logger.Warn("task not recorded", "task", t.ID, "error", err)
			}
		}
	}
	return due, sprint
}

// entityTasks returns the tasks assigned to e's members. The project root
// owns every task, including unassigned ones.
func entityTasks(e *tms.Entity, isRoot bool, tasks []tms.Task) []tms.Task {
	if isRoot {
		return tasks
	}
	members := make(map[string]bool)
	for _, id := range e.MemberIDs() {
		members[id] = true
	}
	var out []tms.Task
	for _, t := range tasks {
		if members[t.Assignee] {
			out = append(out, t)
		}
	}
	return out
}
