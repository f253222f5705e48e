package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/etabotai/etabot/pkg/domain"
	"github.com/etabotai/etabot/pkg/domain/analytics"
	"github.com/etabotai/etabot/pkg/domain/messaging"
	"github.com/etabotai/etabot/pkg/domain/predict"
	"github.com/etabotai/etabot/pkg/domain/project"
	"github.com/etabotai/etabot/pkg/domain/report"
	"github.com/etabotai/etabot/pkg/domain/tms"
	"github.com/etabotai/etabot/pkg/metrics"
)

// Defaults for EstimationService.
const (
	DefaultWorkers           = 4
	DefaultPredictionTimeout = 2 * time.Minute
)

// Velocity report keys that hold tables and never go to the store.
var tabularVelocityKeys = []string{"sprintStats", "velocityVsTime", "velocityStats"}

// RunInput selects what one run processes.
type RunInput struct {
	Owner string
	// Projects restricts the run to these names; empty means every project
	// the owner has stored.
	Projects   []string
	Recipients []string
	// ReportOnly skips velocities, estimates and persistence.
	ReportOnly bool
}

// RunResult describes how a run ended.
type RunResult struct {
	RunID         string
	Stage         string
	Failed        bool
	FailedStage   string
	Degraded      []string
	EmailErr      error
	PersistErrors map[string]error
	Trees         map[string]*report.Node
}

// ServiceOption configures an EstimationService.
type ServiceOption func(*EstimationService)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *EstimationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWorkers bounds the per-project concurrency of a stage.
func WithWorkers(n int) ServiceOption {
	return func(s *EstimationService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithPredictionTimeout bounds the estimates stage.
func WithPredictionTimeout(d time.Duration) ServiceOption {
	return func(s *EstimationService) {
		if d > 0 {
			s.predictionTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *EstimationService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAudit records run and stage outcomes to log.
func WithAudit(log domain.AuditLogger) ServiceOption {
	return func(s *EstimationService) {
		s.audit = log
	}
}

// EstimationService runs the estimation pipeline for one owner.
type EstimationService struct {
	source   tms.Adapter
	engine   predict.Engine
	store    project.Store
	renderer report.Renderer
	mailer   messaging.Mailer
	audit    domain.AuditLogger

	logger            *slog.Logger
	workers           int
	predictionTimeout time.Duration
	now               func() time.Time
}

// NewEstimationService wires the collaborators of a run.
func NewEstimationService(
	source tms.Adapter,
	engine predict.Engine,
	store project.Store,
	renderer report.Renderer,
	mailer messaging.Mailer,
	opts ...ServiceOption,
) *EstimationService {
	s := &EstimationService{
		source:            source,
		engine:            engine,
		store:             store,
		renderer:          renderer,
		mailer:            mailer,
		logger:            slog.Default(),
		workers:           DefaultWorkers,
		predictionTimeout: DefaultPredictionTimeout,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run holds the state of one pipeline execution.
type run struct {
	id      string
	in      RunInput
	machine *PipelineMachine
	result  *RunResult
	logger  *slog.Logger
	audit   domain.AuditLogger
}

// Run executes the pipeline. A fatal stage ends the run in failed and
// returns its error alongside the result; everything else is reported in
// the result.
func (s *EstimationService) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	id := uuid.NewString()
	machine, err := NewPipelineMachine(id)
	if err != nil {
		return nil, err
	}
	r := &run{
		id:      id,
		in:      in,
		machine: machine,
		result:  &RunResult{RunID: id, PersistErrors: map[string]error{}},
		logger:  s.logger.With("run_id", id, "owner", in.Owner),
		audit:   s.audit,
	}
	r.logger.Info("estimation run started", "projects", in.Projects, "report_only", in.ReportOnly)
	r.record(ctx, domain.ActionRunStarted, map[string]any{
		"owner":       in.Owner,
		"projects":    in.Projects,
		"report_only": in.ReportOnly,
	})

	err = s.execute(ctx, r)
	r.result.Stage = machine.Current()
	r.result.Failed = machine.Current() == StateFailed
	r.result.FailedStage = machine.FailedStage()
	metrics.RecordRun(r.result.Stage)

	if err != nil {
		r.logger.Error("estimation run failed", "stage", r.result.FailedStage, "error", err)
		r.record(ctx, domain.ActionRunFailed, map[string]any{
			"stage": r.result.FailedStage,
			"error": err.Error(),
		})
		return r.result, err
	}
	r.record(ctx, domain.ActionRunFinished, map[string]any{
		"stage":          r.result.Stage,
		"degraded":       len(r.result.Degraded),
		"email_failed":   r.result.EmailErr != nil,
		"persist_errors": len(r.result.PersistErrors),
	})
	r.logger.Info("estimation run finished",
		"degraded", len(r.result.Degraded),
		"email_error", r.result.EmailErr != nil,
		"persist_errors", len(r.result.PersistErrors),
	)
	return r.result, nil
}

func (s *EstimationService) execute(ctx context.Context, r *run) error {
	start := time.Now()
	connected := s.connect(ctx, r.in)
	if err := r.finish(ctx, StateInit, start, connected.Status, connected.Reasons, connected.Err); err != nil {
		return err
	}
	conn := connected.Value

	projects := conn.Projects
	var estimates predict.Estimates
	if r.in.ReportOnly {
		if err := r.skip(ctx, StateVelocitiesFetched, StateEstimatesComputed); err != nil {
			return err
		}
	} else {
		start = time.Now()
		vel := s.fetchVelocities(ctx, conn, r.logger)
		if err := r.finish(ctx, StateVelocitiesFetched, start, vel.Status, vel.Reasons, vel.Err); err != nil {
			return err
		}
		projects = vel.Value.Projects

		start = time.Now()
		est := s.computeEstimates(ctx, conn.Names)
		if err := r.finish(ctx, StateEstimatesComputed, start, est.Status, est.Reasons, est.Err); err != nil {
			return err
		}
		estimates = est.Value.Estimates
	}

	start = time.Now()
	built := s.buildReports(ctx, conn.Handle, conn.Names, projects, estimates, r.logger)
	if err := r.finish(ctx, StateReportsBuilt, start, built.Status, built.Reasons, built.Err); err != nil {
		return err
	}
	r.result.Trees = built.Value.Trees

	start = time.Now()
	mailed := s.email(ctx, r, conn.Names, built.Value.Trees)
	r.result.EmailErr = mailed.Value.Err
	if err := r.finish(ctx, StateEmailed, start, mailed.Status, mailed.Reasons, mailed.Err); err != nil {
		return err
	}

	if r.in.ReportOnly {
		if err := r.skip(ctx, StatePersisted); err != nil {
			return err
		}
	} else {
		start = time.Now()
		persisted := s.persist(ctx, conn.Names, projects, built.Value.Trees, mailed.Value.FullReport, r.logger)
		maps.Copy(r.result.PersistErrors, persisted.Value.Errors)
		if err := r.finish(ctx, StatePersisted, start, persisted.Status, persisted.Reasons, persisted.Err); err != nil {
			return err
		}
	}
	return nil
}

// finish records a stage outcome and moves the machine on. A fatal outcome
// moves it to failed and returns the stage error.
func (r *run) finish(ctx context.Context, stage string, start time.Time, status StageStatus, reasons []string, stageErr error) error {
	elapsed := time.Since(start)
	metrics.RecordStage(stage, status.String(), elapsed)
	r.result.Degraded = append(r.result.Degraded, reasons...)
	r.record(ctx, domain.ActionStage, map[string]any{
		"stage":       stage,
		"status":      status.String(),
		"reasons":     reasons,
		"duration_ms": elapsed.Milliseconds(),
	})

	if status == StatusFatal {
		if err := r.machine.Fail(stage); err != nil {
			return errors.Join(stageErr, err)
		}
		return fmt.Errorf("stage %s: %w", stage, stageErr)
	}
	if status == StatusDegraded {
		r.logger.Warn("stage degraded", "stage", stage, "reasons", len(reasons))
	} else {
		r.logger.Debug("stage completed", "stage", stage)
	}
	return r.machine.Advance()
}

// skip advances through stages a report-only run does not perform.
func (r *run) skip(ctx context.Context, stages ...string) error {
	for _, stage := range stages {
		metrics.RecordStage(stage, "skipped", 0)
		r.record(ctx, domain.ActionStage, map[string]any{"stage": stage, "status": "skipped"})
		if err := r.machine.Advance(); err != nil {
			return err
		}
	}
	return nil
}

// record writes an audit event. Audit failures are logged and never fail the run.
func (r *run) record(ctx context.Context, action string, metadata map[string]any) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Log(ctx, r.id, action, metadata); err != nil {
		r.logger.Warn("audit event not recorded", "action", action, "error", err)
	}
}

// connect acquires the source handle and resolves the run's projects from
// the store, refreshed with the source system's attributes.
func (s *EstimationService) connect(ctx context.Context, in RunInput) StageResult[ConnectOutput] {
	h, err := s.source.Connect(ctx)
	if err != nil {
		return Fatal[ConnectOutput](err)
	}
	attrs, err := s.source.FetchProjects(ctx, h)
	if err != nil {
		return Fatal[ConnectOutput](fmt.Errorf("fetch projects: %w", err))
	}

	var reasons []string
	stored, err := s.store.List(ctx, in.Owner)
	if err != nil {
		s.logger.Warn("stored projects could not be listed", "owner", in.Owner, "error", err)
		reasons = append(reasons, "stored projects unavailable")
	}
	known := make(map[string]*project.Project, len(stored))
	for _, p := range stored {
		known[p.Name] = p
	}

	names := dedupe(in.Projects)
	if len(names) == 0 {
		names = slices.Sorted(maps.Keys(known))
	}

	out := ConnectOutput{Handle: h, Projects: make(map[string]*project.Project, len(names))}
	for _, name := range names {
		a, inSource := attrs[name]
		p, inStore := known[name]
		switch {
		case inStore && inSource:
			p = p.Clone()
			p.Apply(a)
		case inStore:
			p = p.Clone()
		case inSource:
			p = project.FromAttrs(in.Owner, h.Account(), a)
		default:
			s.logger.Warn("project not found", "project", name)
			reasons = append(reasons, fmt.Sprintf("%s: %v", name, project.ErrProjectNotFound))
			continue
		}
		// The source key is the name every later stage and the store use.
		p.Name = name
		out.Projects[name] = p
		out.Names = append(out.Names, name)
	}
	return Degraded(out, reasons...)
}

// fetchVelocities attaches each project's current velocity. A project
// without one keeps its previous velocities.
func (s *EstimationService) fetchVelocities(ctx context.Context, conn ConnectOutput, logger *slog.Logger) StageResult[VelocityOutput] {
	updated := make([]*project.Project, len(conn.Names))
	failures := make([]string, len(conn.Names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, name := range conn.Names {
		g.Go(func() error {
			p := conn.Projects[name].Clone()
			updated[i] = p
			m, err := s.engine.EstimateVelocity(gctx, name)
			if err != nil {
				logger.Warn("velocity unavailable", "project", name, "error", err)
				metrics.RecordDegradedEntity(reasonVelocityUnavailable)
				failures[i] = fmt.Sprintf("%s: %s", name, reasonVelocityUnavailable)
				return nil
			}
			if p.Velocities == nil {
				p.Velocities = map[string]any{}
			}
			maps.Copy(p.Velocities, analytics.VelocityJSON(m))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Fatal[VelocityOutput](err)
	}

	out := VelocityOutput{Projects: make(map[string]*project.Project, len(updated))}
	for i, p := range updated {
		out.Projects[conn.Names[i]] = p
	}
	return Degraded(out, compact(failures)...)
}

// computeEstimates asks the engine for task estimates within the
// prediction timeout. Any engine failure ends the run.
func (s *EstimationService) computeEstimates(ctx context.Context, names []string) StageResult[EstimateOutput] {
	t := timeout.New[predict.Estimates](timeout.Config{DefaultTimeout: s.predictionTimeout})
	est, err := t.Execute(ctx, s.predictionTimeout, func(ctx context.Context) (predict.Estimates, error) {
		return s.engine.EstimateTasks(ctx, names)
	})
	if err != nil {
		if !errors.Is(err, predict.ErrUnreachable) {
			err = fmt.Errorf("%w: %w", predict.ErrUnreachable, err)
		}
		return Fatal[EstimateOutput](err)
	}
	if est == nil {
		est = predict.Estimates{}
	}
	return OK(EstimateOutput{Estimates: est})
}

// buildReports builds one tree per project. Each tree is built by a single
// goroutine.
func (s *EstimationService) buildReports(ctx context.Context, h tms.Handle, names []string, projects map[string]*project.Project, estimates predict.Estimates, logger *slog.Logger) StageResult[BuildOutput] {
	builder := NewReportBuilder(s.source, s.engine, s.renderer, logger)
	builder.now = s.now

	trees := make([]*report.Node, len(names))
	reasons := make([][]string, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, name := range names {
		p := projects[name]
		if p == nil {
			logger.Warn("project missing from run", "project", name)
			reasons[i] = []string{fmt.Sprintf("%s: %s", name, reasonProjectMissing)}
			continue
		}
		g.Go(func() error {
			trees[i], reasons[i] = builder.Build(gctx, h, p, estimates)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Fatal[BuildOutput](err)
	}

	out := BuildOutput{Trees: make(map[string]*report.Node, len(names))}
	var all []string
	for i, name := range names {
		if trees[i] != nil {
			out.Trees[name] = trees[i]
		}
		all = append(all, reasons[i]...)
	}
	return Degraded(out, all...)
}

// email sends one aggregate message for every tree. A send failure is
// reported but never fails the run.
func (s *EstimationService) email(ctx context.Context, r *run, names []string, trees map[string]*report.Node) StageResult[EmailOutput] {
	msg, err := composeEmail(s.renderer, r.id, s.now(), names, trees)
	if err != nil {
		r.logger.Error("email could not be composed", "error", err)
		return Degraded(EmailOutput{Err: err}, "email not composed")
	}
	msg.To = r.in.Recipients
	if err := s.mailer.Send(ctx, msg); err != nil {
		r.logger.Error("email could not be sent", "error", err)
		return Degraded(EmailOutput{Err: err, FullReport: msg.HTMLBody}, "email not sent")
	}
	r.logger.Info("email sent", "subject", msg.Subject)
	return OK(EmailOutput{Sent: true, FullReport: msg.HTMLBody})
}

// persist serializes every tree first, so an invariant violation stops the
// run before anything is written, then saves each project independently.
// Every project stores the run's full report; without one a project keeps
// the HTML of its own root.
func (s *EstimationService) persist(ctx context.Context, names []string, projects map[string]*project.Project, trees map[string]*report.Node, fullReport string, logger *slog.Logger) StageResult[PersistOutput] {
	reportDate := s.now().UTC().Format(time.RFC3339)

	var reasons []string
	docs := make(map[string]map[string]any, len(names))
	for _, name := range names {
		if projects[name] == nil || trees[name] == nil {
			logger.Warn("project missing from run", "project", name)
			reasons = append(reasons, fmt.Sprintf("%s: %s", name, reasonProjectMissing))
			continue
		}
		doc, err := trees[name].ToDictWithLogger(logger.With("project", name))
		if err != nil {
			return Fatal[PersistOutput](fmt.Errorf("serialize %s: %w", name, err))
		}
		stripTabular(doc)
		docs[name] = doc
	}

	var (
		mu  sync.Mutex
		out = PersistOutput{Errors: map[string]error{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, name := range names {
		doc, ok := docs[name]
		if !ok {
			continue
		}
		g.Go(func() error {
			p := projects[name].Clone()
			if p.Settings == nil {
				p.Settings = map[string]any{}
			}
			html := fullReport
			if html == "" {
				html, _ = doc["html"].(string)
			}
			p.Settings[project.SettingReport] = html
			p.Settings[project.SettingReportDate] = reportDate
			p.Settings[project.SettingHierarchicalReport] = doc

			err := s.store.Save(gctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error("project not persisted", "project", name, "error", err)
				out.Errors[name] = err
				return nil
			}
			out.Saved = append(out.Saved, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Fatal[PersistOutput](err)
	}
	sort.Strings(out.Saved)

	for _, name := range slices.Sorted(maps.Keys(out.Errors)) {
		reasons = append(reasons, name+": not persisted")
	}
	return Degraded(out, reasons...)
}

// stripTabular removes table-valued keys from every velocity report in doc.
func stripTabular(doc map[string]any) {
	queue := []map[string]any{doc}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if v, ok := cur["velocityReport"].(map[string]any); ok {
			for _, k := range tabularVelocityKeys {
				delete(v, k)
			}
		}
		children, _ := cur["children"].([]any)
		for _, c := range children {
			if m, ok := c.(map[string]any); ok {
				queue = append(queue, m)
			}
		}
	}
}

// dedupe drops repeated names, keeping the first occurrence.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
