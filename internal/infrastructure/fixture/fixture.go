// Package fixture reads projects, tasks and hierarchies from a YAML file. It
// stands in for a live task-management system in demos and tests.
package fixture

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/etabotai/etabot/pkg/domain/tms"
)

// File is the on-disk layout.
type File struct {
	Account  string    `yaml:"account"`
	Projects []Project `yaml:"projects"`
}

// Project is one project of a fixture file.
type Project struct {
	tms.ProjectAttrs `yaml:",inline"`
	Hierarchy        *tms.Entity `yaml:"hierarchy,omitempty"`
	Tasks            []tms.Task  `yaml:"tasks"`
}

type handle struct{ account string }

func (h handle) Account() string { return h.account }

// Adapter implements tms.Adapter over a fixture file.
type Adapter struct {
	path string

	mu       sync.Mutex
	data     *File
	projects map[string]*Project
}

var _ tms.Adapter = (*Adapter)(nil)

// New creates an adapter reading path on Connect.
func New(path string) *Adapter {
	return &Adapter{path: path}
}

// FromFile creates an adapter serving already loaded data.
func FromFile(f *File) *Adapter {
	a := &Adapter{}
	a.index(f)
	return a
}

func (a *Adapter) Name() string { return "fixture" }

// Connect loads the file. A missing or malformed file is a connection error.
func (a *Adapter) Connect(ctx context.Context) (tms.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.data == nil {
		data, err := os.ReadFile(a.path)
		if err != nil {
			return nil, &tms.ConnectionError{Endpoint: a.path, Err: err}
		}
		var f File
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, &tms.ConnectionError{Endpoint: a.path, Err: fmt.Errorf("parse fixture: %w", err)}
		}
		a.index(&f)
	}
	account := a.data.Account
	if account == "" {
		account = "fixture"
	}
	return handle{account: account}, nil
}

func (a *Adapter) index(f *File) {
	a.data = f
	a.projects = make(map[string]*Project, len(f.Projects))
	for i := range f.Projects {
		a.projects[f.Projects[i].Name] = &f.Projects[i]
	}
}

func (a *Adapter) FetchProjects(ctx context.Context, _ tms.Handle) (map[string]tms.ProjectAttrs, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]tms.ProjectAttrs, len(a.projects))
	for name, p := range a.projects {
		out[name] = p.ProjectAttrs
	}
	return out, nil
}

func (a *Adapter) FetchTasks(ctx context.Context, _ tms.Handle, project string) ([]tms.Task, error) {
	p, err := a.project(project)
	if err != nil {
		return nil, err
	}
	return append([]tms.Task(nil), p.Tasks...), nil
}

// FetchHierarchy returns the configured hierarchy, or one derived from task
// assignees when the fixture has none.
func (a *Adapter) FetchHierarchy(ctx context.Context, _ tms.Handle, project string) (*tms.Entity, error) {
	p, err := a.project(project)
	if err != nil {
		return nil, err
	}
	if p.Hierarchy != nil {
		return p.Hierarchy, nil
	}
	return HierarchyFromTasks(project, p.Tasks), nil
}

func (a *Adapter) project(name string) (*Project, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.projects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", tms.ErrProjectNotFound, name)
	}
	return p, nil
}

// HierarchyFromTasks builds a flat project → members tree from assignees.
func HierarchyFromTasks(project string, tasks []tms.Task) *tms.Entity {
	root := &tms.Entity{ID: project, DisplayName: project, Kind: tms.KindProject}
	seen := map[string]bool{}
	var ids []string
	for _, t := range tasks {
		if t.Assignee == "" || seen[t.Assignee] {
			continue
		}
		seen[t.Assignee] = true
		ids = append(ids, t.Assignee)
	}
	sort.Strings(ids)
	for _, id := range ids {
		root.Members = append(root.Members, &tms.Entity{ID: id, DisplayName: id, Kind: tms.KindMember})
	}
	return root
}
