package wiring

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/etabotai/etabot/internal/infrastructure/config"
	"github.com/etabotai/etabot/internal/infrastructure/fixture"
	"github.com/etabotai/etabot/internal/infrastructure/jira"
	"github.com/etabotai/etabot/internal/infrastructure/messaging"
	"github.com/etabotai/etabot/internal/infrastructure/predict"
	domainmsg "github.com/etabotai/etabot/pkg/domain/messaging"
	"github.com/etabotai/etabot/pkg/domain/project"
	"github.com/etabotai/etabot/pkg/domain/tms"
	"github.com/etabotai/etabot/pkg/storage"
)

// Workspace bundles the infrastructure a run talks to.
type Workspace struct {
	DB     *sql.DB
	Store  *storage.ProjectStore
	Audit  *storage.AuditStore
	Source tms.Adapter
	Engine *predict.Engine
	Mailer *messaging.Registry
}

// NewWorkspace opens the store and connects the configured collaborators.
func NewWorkspace(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Workspace, error) {
	db, err := storage.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	store := storage.NewProjectStore(db)

	source, err := NewSource(ctx, cfg, store, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	var extra []domainmsg.MessageAdapter
	if cfg.Pipeline.ReportDir != "" {
		extra = append(extra, messaging.NewFileAdapter(domainmsg.AdapterConfig{
			Name:    "report-archive",
			Type:    "file",
			URL:     cfg.Pipeline.ReportDir,
			Enabled: true,
		}))
	}
	mailer, err := messaging.NewRegistry(&cfg.Email, messaging.WithLogger(logger), messaging.WithAdapters(extra...))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("configure email: %w", err)
	}

	engine := predict.NewEngine(source, predict.Config{
		SprintLength:  cfg.SprintLength(),
		Velocities:    cfg.Engine.Velocities,
		DefaultPoints: cfg.Engine.DefaultPoints,
	}, logger)

	return &Workspace{
		DB:     db,
		Store:  store,
		Audit:  storage.NewAuditStore(db, cfg.Owner),
		Source: source,
		Engine: engine,
		Mailer: mailer,
	}, nil
}

// Close releases the store.
func (w *Workspace) Close() error {
	return w.DB.Close()
}

// NewSource builds the configured source adapter. With OAuth2 enabled the
// Jira token is looked up among the owner's stored tokens.
func NewSource(ctx context.Context, cfg *config.Config, tokens project.Store, logger *slog.Logger) (tms.Adapter, error) {
	switch cfg.TMS.Type {
	case config.TMSFixture:
		return fixture.New(cfg.TMS.Fixture), nil
	case config.TMSJira:
		jcfg := jira.Config{
			Endpoint:    cfg.TMS.Endpoint,
			Username:    cfg.TMS.Username,
			APIToken:    cfg.TMS.Token,
			PointsField: cfg.TMS.PointsField,
			SprintField: cfg.TMS.SprintField,
			Teams:       cfg.TMS.Teams,
		}
		if cfg.TMS.OAuth2.Enabled {
			tok, err := tokens.FindToken(ctx, project.TokenFilter{Owner: cfg.Owner, Name: cfg.TMS.OAuth2.TokenName})
			if err != nil {
				return nil, fmt.Errorf("find oauth token: %w", err)
			}
			jcfg.Token = tok.OAuth2()
		}
		client, err := jira.NewClient(jcfg, jira.WithMaxConcurrent(cfg.TMS.MaxConcurrent))
		if err != nil {
			return nil, err
		}
		return jira.NewAdapter(client, logger), nil
	default:
		return nil, fmt.Errorf("unknown tms type %q", cfg.TMS.Type)
	}
}
