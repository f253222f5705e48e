package fixture

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/etabotai/etabot/pkg/domain/tms"
)

func TestAdapter_Demo(t *testing.T) {
	ctx := context.Background()
	a := New(filepath.Join("testdata", "demo.yaml"))

	h, err := a.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if h.Account() != "demo@fixture" {
		t.Errorf("Account() = %q", h.Account())
	}

	projects, err := a.FetchProjects(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 {
		t.Fatalf("FetchProjects() = %d, want 2", len(projects))
	}
	bw := projects["Buckwheat"]
	if bw.GracePeriod != 24 || bw.OpenStatus != "To Do" || len(bw.WorkHours) != 2 {
		t.Errorf("Buckwheat attrs = %+v", bw)
	}

	tasks, err := a.FetchTasks(ctx, h, "Buckwheat")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 3 || tasks[2].DueDate == nil || !tasks[0].Done {
		t.Errorf("FetchTasks() = %+v", tasks)
	}

	root, err := a.FetchHierarchy(ctx, h, "Buckwheat")
	if err != nil {
		t.Fatal(err)
	}
	if got := root.MemberIDs(); len(got) != 2 || got[0] != "alice" {
		t.Errorf("MemberIDs() = %v", got)
	}
}

func TestAdapter_DerivedHierarchy(t *testing.T) {
	a := FromFile(&File{Projects: []Project{{
		ProjectAttrs: tms.ProjectAttrs{Name: "P"},
		Tasks:        []tms.Task{{ID: "1", Assignee: "zoe"}, {ID: "2", Assignee: "amy"}, {ID: "3", Assignee: "zoe"}, {ID: "4"}},
	}}})

	root, err := a.FetchHierarchy(context.Background(), nil, "P")
	if err != nil {
		t.Fatal(err)
	}
	if root.Kind != tms.KindProject || len(root.Members) != 2 || root.Members[0].ID != "amy" {
		t.Errorf("hierarchy = %+v", root)
	}
}

func TestAdapter_Errors(t *testing.T) {
	ctx := context.Background()

	if _, err := New(filepath.Join(t.TempDir(), "missing.yaml")).Connect(ctx); !errors.Is(err, tms.ErrConnection) {
		t.Errorf("Connect() error = %v, want ErrConnection", err)
	}

	a := New(filepath.Join("testdata", "demo.yaml"))
	h, err := a.Connect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.FetchTasks(ctx, h, "Nope"); !errors.Is(err, tms.ErrProjectNotFound) {
		t.Errorf("FetchTasks() error = %v, want ErrProjectNotFound", err)
	}
}
