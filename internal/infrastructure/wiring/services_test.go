package wiring

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/etabotai/etabot/internal/infrastructure/config"
	"github.com/etabotai/etabot/internal/infrastructure/jira"
	"github.com/etabotai/etabot/pkg/application"
	"github.com/etabotai/etabot/pkg/domain"
	"github.com/etabotai/etabot/pkg/domain/project"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Owner = "demo"
	cfg.Store.Path = filepath.Join(dir, "etabot.db")
	cfg.TMS.Fixture = filepath.Join("..", "fixture", "testdata", "demo.yaml")
	cfg.Pipeline.ReportDir = filepath.Join(dir, "reports")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}
	return cfg
}

func TestBuildAppServices_FixtureRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	services, err := BuildAppServices(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("BuildAppServices() error = %v", err)
	}
	defer services.Close()

	summary, err := services.Projects.ParseProjects(ctx, cfg.Owner)
	if err != nil {
		t.Fatalf("ParseProjects() error = %v", err)
	}
	if !slices.Equal(summary.New, []string{"Buckwheat", "Cheburashka"}) {
		t.Fatalf("summary = %+v", summary)
	}

	res, err := services.Estimation.Run(ctx, application.RunInput{Owner: cfg.Owner})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stage != application.StateDone || res.EmailErr != nil {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(cfg.Pipeline.ReportDir, res.RunID+".html")); err != nil {
		t.Errorf("archived report missing: %v", err)
	}

	events, err := services.Workspace.Audit.Events(ctx, res.RunID)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 8 || events[7].Action != domain.ActionRunFinished {
		t.Errorf("audit trail has %d events", len(events))
	}
	if err := domain.VerifyChain(events); err != nil {
		t.Errorf("VerifyChain() error = %v", err)
	}

	doc, err := services.Projects.GetReport(ctx, cfg.Owner, "Buckwheat")
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	children, _ := doc["children"].([]any)
	if len(children) != 1 {
		t.Errorf("Buckwheat children = %d, want the core team", len(children))
	}
}

func TestNewSource_OAuthToken(t *testing.T) {
	ctx := context.Background()
	base := testConfig(t)
	services, err := BuildAppServices(ctx, base, nil)
	if err != nil {
		t.Fatalf("BuildAppServices() error = %v", err)
	}
	defer services.Close()
	store := services.Workspace.Store

	cfg := *base
	cfg.TMS = config.TMSConfig{
		Type:     config.TMSJira,
		Endpoint: "https://acme.atlassian.net",
		OAuth2:   config.OAuth2Config{Enabled: true, TokenName: "jira"},
		Teams:    map[string][]jira.Team{},
	}

	if _, err := NewSource(ctx, &cfg, store, nil); !errors.Is(err, project.ErrTokenNotFound) {
		t.Fatalf("NewSource() without token error = %v", err)
	}

	if err := store.SaveToken(ctx, &project.OAuthToken{Owner: cfg.Owner, Name: "jira", AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatal(err)
	}
	source, err := NewSource(ctx, &cfg, store, nil)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if source.Name() != "jira" {
		t.Errorf("source = %s", source.Name())
	}
}
