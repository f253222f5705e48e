package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/etabotai/etabot/pkg/domain/analytics"
	"github.com/etabotai/etabot/pkg/domain/predict"
	"github.com/etabotai/etabot/pkg/domain/project"
	"github.com/etabotai/etabot/pkg/domain/report"
	"github.com/etabotai/etabot/pkg/domain/tms"
)

// ErrReportNotFound indicates a project has no persisted hierarchical report.
var ErrReportNotFound = errors.New("no report has been generated for this project")

// ParseSummary lists the projects a parse created and refreshed.
type ParseSummary struct {
	New     []string
	Updated []string
}

func (s ParseSummary) String() string {
	return fmt.Sprintf("new projects: %d, updated projects: %d", len(s.New), len(s.Updated))
}

// ProjectService keeps the stored projects in step with the source system.
type ProjectService struct {
	source tms.Adapter
	engine predict.Engine
	store  project.Store
	logger *slog.Logger
}

// NewProjectService creates a ProjectService. A nil logger uses slog.Default.
func NewProjectService(source tms.Adapter, engine predict.Engine, store project.Store, logger *slog.Logger) *ProjectService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectService{source: source, engine: engine, store: store, logger: logger}
}

// ParseProjects discovers the source system's projects and upserts them for
// owner with their current velocity. A project whose velocity cannot be
// measured is still saved.
func (s *ProjectService) ParseProjects(ctx context.Context, owner string) (*ParseSummary, error) {
	h, err := s.source.Connect(ctx)
	if err != nil {
		return nil, err
	}
	attrs, err := s.source.FetchProjects(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("fetch projects: %w", err)
	}

	summary := &ParseSummary{}
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(attrs)) {
		a := attrs[name]
		a.Name = name

		p, err := s.store.Get(ctx, owner, name)
		isNew := errors.Is(err, project.ErrProjectNotFound)
		switch {
		case isNew:
			p = project.FromAttrs(owner, h.Account(), a)
		case err != nil:
			errs = append(errs, fmt.Errorf("load %s: %w", name, err))
			continue
		default:
			p.TMS = h.Account()
			p.Apply(a)
		}

		if m, err := s.engine.EstimateVelocity(ctx, name); err != nil {
			s.logger.Warn("velocity unavailable", "project", name, "error", err)
		} else {
			if p.Velocities == nil {
				p.Velocities = map[string]any{}
			}
			maps.Copy(p.Velocities, analytics.VelocityJSON(m))
		}

		if err := s.store.Save(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", name, err))
			continue
		}
		if isNew {
			summary.New = append(summary.New, name)
		} else {
			summary.Updated = append(summary.Updated, name)
		}
	}

	s.logger.Info("projects parsed", "owner", owner, "new", len(summary.New), "updated", len(summary.Updated))
	return summary, errors.Join(errs...)
}

// GetReport returns the persisted hierarchical report of a project after
// checking it against the report schema.
func (s *ProjectService) GetReport(ctx context.Context, owner, name string) (map[string]any, error) {
	p, err := s.store.Get(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	doc, ok := p.Settings[project.SettingHierarchicalReport].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, name)
	}
	if err := report.ValidateSerialized(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ListProjects returns the owner's stored projects.
func (s *ProjectService) ListProjects(ctx context.Context, owner string) ([]*project.Project, error) {
	return s.store.List(ctx, owner)
}
