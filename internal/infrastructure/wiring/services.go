package wiring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/etabotai/etabot/internal/infrastructure/config"
	"github.com/etabotai/etabot/pkg/application"
	"github.com/etabotai/etabot/pkg/render"
)

// AppServices exposes the application services wired to a workspace.
type AppServices struct {
	Config     *config.Config
	Workspace  *Workspace
	Estimation *application.EstimationService
	Projects   *application.ProjectService
}

// BuildAppServices constructs the services for cfg. Close the returned
// services when done.
func BuildAppServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*AppServices, error) {
	if logger == nil {
		logger = slog.Default()
	}
	workspace, err := NewWorkspace(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	renderer, err := render.New()
	if err != nil {
		workspace.Close()
		return nil, fmt.Errorf("load templates: %w", err)
	}

	estimation := application.NewEstimationService(
		workspace.Source,
		workspace.Engine,
		workspace.Store,
		renderer,
		workspace.Mailer,
		application.WithLogger(logger),
		application.WithWorkers(cfg.Pipeline.Workers),
		application.WithPredictionTimeout(cfg.Pipeline.PredictionTimeout),
		application.WithAudit(workspace.Audit),
	)

	return &AppServices{
		Config:     cfg,
		Workspace:  workspace,
		Estimation: estimation,
		Projects:   application.NewProjectService(workspace.Source, workspace.Engine, workspace.Store, logger),
	}, nil
}

// Close releases the workspace.
func (s *AppServices) Close() error {
	return s.Workspace.Close()
}
