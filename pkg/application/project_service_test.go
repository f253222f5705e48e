package application

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/etabotai/etabot/pkg/domain/project"
	"github.com/etabotai/etabot/pkg/domain/report"
	"github.com/etabotai/etabot/pkg/domain/tms"
)

func TestProjectService_ParseProjects(t *testing.T) {
	source, engine := twoProjectFixture()
	store := newMemStore(&project.Project{
		Name:     "alpha",
		Owner:    testOwner,
		Mode:     project.ModeKanban,
		Settings: map[string]any{"keep": true},
	})
	svc := NewProjectService(source, engine, store, nil)

	summary, err := svc.ParseProjects(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("ParseProjects() error = %v", err)
	}
	if !slices.Equal(summary.New, []string{"beta"}) || !slices.Equal(summary.Updated, []string{"alpha"}) {
		t.Errorf("summary = %+v", summary)
	}
	if summary.String() != "new projects: 1, updated projects: 1" {
		t.Errorf("String() = %q", summary.String())
	}

	alpha, _ := store.Get(context.Background(), testOwner, "alpha")
	if alpha.Mode != project.ModeScrum || alpha.GracePeriod != 24 || alpha.TMS != "fake@test" {
		t.Errorf("alpha = %+v", alpha)
	}
	if alpha.Settings["keep"] != true || alpha.Velocities["value"] != 2.0 {
		t.Errorf("alpha settings %v velocities %v", alpha.Settings, alpha.Velocities)
	}
	beta, _ := store.Get(context.Background(), testOwner, "beta")
	if beta.GracePeriod != project.DefaultGracePeriod || beta.Velocities != nil {
		t.Errorf("beta = %+v", beta)
	}
}

func TestProjectService_ParseProjectsStoresBySourceKey(t *testing.T) {
	source := &fakeSource{Projects: map[string]tms.ProjectAttrs{"ALP": {Name: "Alpha Project"}}}
	store := newMemStore()
	svc := NewProjectService(source, &fakeEngine{}, store, nil)

	summary, err := svc.ParseProjects(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("ParseProjects() error = %v", err)
	}
	if !slices.Equal(summary.New, []string{"ALP"}) {
		t.Errorf("summary = %+v", summary)
	}
	if p, err := store.Get(context.Background(), testOwner, "ALP"); err != nil || p.Name != "ALP" {
		t.Errorf("Get(ALP) = %+v, %v", p, err)
	}
}

func TestProjectService_ParseProjectsConnectFailure(t *testing.T) {
	source, engine := twoProjectFixture()
	source.ConnectErr = &tms.ConnectionError{Endpoint: "jira", Err: errTest}
	svc := NewProjectService(source, engine, newMemStore(), nil)

	if _, err := svc.ParseProjects(context.Background(), testOwner); !errors.Is(err, tms.ErrConnection) {
		t.Errorf("ParseProjects() error = %v", err)
	}
}

func TestProjectService_ParseProjectsSaveFailure(t *testing.T) {
	source, engine := twoProjectFixture()
	store := newMemStore()
	store.SaveErr = map[string]error{"beta": errTest}
	svc := NewProjectService(source, engine, store, nil)

	summary, err := svc.ParseProjects(context.Background(), testOwner)
	if !errors.Is(err, errTest) {
		t.Errorf("ParseProjects() error = %v", err)
	}
	if !slices.Equal(summary.New, []string{"alpha"}) {
		t.Errorf("summary = %+v", summary)
	}
}

func TestProjectService_GetReport(t *testing.T) {
	source, engine := twoProjectFixture()
	store := seededStore()
	run := newTestService(source, engine, store, &fakeMailer{})
	if _, err := run.Run(context.Background(), RunInput{Owner: testOwner}); err != nil {
		t.Fatal(err)
	}
	svc := NewProjectService(source, engine, store, nil)

	doc, err := svc.GetReport(context.Background(), testOwner, "alpha")
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if doc["project"] != "alpha" {
		t.Errorf("project = %v", doc["project"])
	}

	store.projects[testOwner+"/beta"].Settings[project.SettingHierarchicalReport] = map[string]any{"project": "beta"}
	if _, err := svc.GetReport(context.Background(), testOwner, "beta"); !errors.Is(err, report.ErrInvalidSerialized) {
		t.Errorf("GetReport(malformed) error = %v", err)
	}

	store.projects[testOwner+"/gamma"] = &project.Project{Name: "gamma", Owner: testOwner}
	if _, err := svc.GetReport(context.Background(), testOwner, "gamma"); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("GetReport(no report) error = %v", err)
	}
	if _, err := svc.GetReport(context.Background(), testOwner, "ghost"); !errors.Is(err, project.ErrProjectNotFound) {
		t.Errorf("GetReport(missing) error = %v", err)
	}
}
