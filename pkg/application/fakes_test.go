package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/etabotai/etabot/pkg/domain"
	"github.com/etabotai/etabot/pkg/domain/analytics"
	"github.com/etabotai/etabot/pkg/domain/messaging"
	"github.com/etabotai/etabot/pkg/domain/predict"
	"github.com/etabotai/etabot/pkg/domain/project"
	"github.com/etabotai/etabot/pkg/domain/tms"
)

var errTest = errors.New("test failure")

var testNow = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func day(n int) *time.Time {
	t := testNow.AddDate(0, 0, n)
	return &t
}

type fakeHandle string

func (h fakeHandle) Account() string { return string(h) }

type fakeSource struct {
	ConnectErr   error
	ConnectDelay time.Duration
	Projects     map[string]tms.ProjectAttrs
	Hierarchies  map[string]*tms.Entity
	HierarchyErr map[string]error
	Tasks        map[string][]tms.Task
	TasksErr     map[string]error

	mu       sync.Mutex
	connects int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Connect(context.Context) (tms.Handle, error) {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	time.Sleep(f.ConnectDelay)
	if f.ConnectErr != nil {
		return nil, f.ConnectErr
	}
	return fakeHandle("fake@test"), nil
}

func (f *fakeSource) FetchProjects(context.Context, tms.Handle) (map[string]tms.ProjectAttrs, error) {
	return f.Projects, nil
}

func (f *fakeSource) FetchTasks(_ context.Context, _ tms.Handle, name string) ([]tms.Task, error) {
	if err := f.TasksErr[name]; err != nil {
		return nil, err
	}
	return f.Tasks[name], nil
}

func (f *fakeSource) FetchHierarchy(_ context.Context, _ tms.Handle, name string) (*tms.Entity, error) {
	if err := f.HierarchyErr[name]; err != nil {
		return nil, err
	}
	if e, ok := f.Hierarchies[name]; ok {
		return e, nil
	}
	return &tms.Entity{ID: name, DisplayName: name, Kind: tms.KindProject}, nil
}

type fakeEngine struct {
	Velocities map[string]float64
	// NoVelocity lists "project/entity" pairs without velocity history.
	NoVelocity map[string]bool
	Estimates  predict.Estimates
	TasksErr   error
	Delay      time.Duration
}

func (f *fakeEngine) EstimateVelocity(_ context.Context, name string) (analytics.Measurement, error) {
	v, ok := f.Velocities[name]
	if !ok {
		return analytics.Measurement{}, predict.ErrNoVelocity
	}
	return analytics.NewMeasurement(v), nil
}

func (f *fakeEngine) EstimateTasks(ctx context.Context, _ []string) (predict.Estimates, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.Estimates, f.TasksErr
}

func (f *fakeEngine) VelocityReport(_ context.Context, name string, e *tms.Entity) (predict.VelocityData, error) {
	if f.NoVelocity[name+"/"+e.ID] {
		return predict.VelocityData{}, predict.ErrNoVelocity
	}
	return predict.VelocityData{
		Summary: fmt.Sprintf("velocity of %s", e.ID),
		SprintStats: analytics.Table{
			Columns: []string{"sprint_id", "velocity"},
			Rows:    [][]string{{"Sprint 1", "1.00"}},
		},
		VelocityStats: analytics.Table{
			Columns: []string{"mean"},
			Rows:    [][]string{{"1.00"}},
		},
	}, nil
}

type memStore struct {
	mu       sync.Mutex
	projects map[string]*project.Project
	SaveErr  map[string]error
	ListErr  error
	saves    int
}

func newMemStore(projects ...*project.Project) *memStore {
	s := &memStore{projects: map[string]*project.Project{}}
	for _, p := range projects {
		s.projects[p.Owner+"/"+p.Name] = p
	}
	return s
}

func (s *memStore) Save(_ context.Context, p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if err := s.SaveErr[p.Name]; err != nil {
		return err
	}
	s.projects[p.Owner+"/"+p.Name] = p.Clone()
	return nil
}

func (s *memStore) Get(_ context.Context, owner, name string) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[owner+"/"+name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", project.ErrProjectNotFound, name)
	}
	return p.Clone(), nil
}

func (s *memStore) List(_ context.Context, owner string) ([]*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var out []*project.Project
	for _, p := range s.projects {
		if p.Owner == owner {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (s *memStore) SaveToken(context.Context, *project.OAuthToken) error { return nil }

func (s *memStore) FindToken(context.Context, project.TokenFilter) (*project.OAuthToken, error) {
	return nil, project.ErrTokenNotFound
}

type fakeMailer struct {
	mu   sync.Mutex
	Err  error
	sent []messaging.Message
}

func (m *fakeMailer) Send(_ context.Context, msg messaging.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.Err
}

type memAudit struct {
	mu     sync.Mutex
	events []domain.Event
	Err    error
}

func (a *memAudit) Log(_ context.Context, runID, action string, metadata map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.events = append(a.events, domain.Event{RunID: runID, Action: action, Metadata: metadata})
	return nil
}

// stages returns "stage:status" for every stage event in order.
func (a *memAudit) stages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.events {
		if e.Action == domain.ActionStage {
			out = append(out, fmt.Sprintf("%v:%v", e.Metadata["stage"], e.Metadata["status"]))
		}
	}
	return out
}

type fakeRenderer struct{}

func (fakeRenderer) Render(name string, _ any) (string, error) {
	return "<" + name + ">", nil
}

// twoProjectFixture returns a source and engine for alpha, fully known, and
// beta, whose only member has no velocity history.
func twoProjectFixture() (*fakeSource, *fakeEngine) {
	source := &fakeSource{
		Projects: map[string]tms.ProjectAttrs{
			"alpha": {Name: "alpha", Mode: "Scrum", GracePeriod: 24},
			"beta":  {Name: "beta", Mode: "kanban"},
		},
		Hierarchies: map[string]*tms.Entity{
			"alpha": {ID: "alpha", DisplayName: "Alpha", Kind: tms.KindProject, Members: []*tms.Entity{
				{ID: "core", DisplayName: "Core", Kind: tms.KindTeam, Members: []*tms.Entity{
					{ID: "alice", DisplayName: "Alice", Kind: tms.KindMember},
					{ID: "bob", DisplayName: "Bob", Kind: tms.KindMember},
				}},
			}},
			"beta": {ID: "beta", DisplayName: "Beta", Kind: tms.KindProject, Members: []*tms.Entity{
				{ID: "gena", DisplayName: "Gena", Kind: tms.KindMember},
			}},
		},
		Tasks: map[string][]tms.Task{
			"alpha": {
				{ID: "1", Key: "A-1", Assignee: "alice", DueDate: day(10), SprintEnd: day(7)},
				{ID: "2", Key: "A-2", Assignee: "bob", DueDate: day(3)},
				{ID: "3", Key: "A-3", Assignee: "bob", Done: true},
			},
			"beta": {
				{ID: "9", Key: "B-1", Assignee: "gena", DueDate: day(5)},
			},
		},
	}
	engine := &fakeEngine{
		Velocities: map[string]float64{"alpha": 2},
		NoVelocity: map[string]bool{"beta/gena": true},
		Estimates: predict.Estimates{
			"alpha": {
				"1": {TaskID: "1", ETA: day(4), Status: "on_track"},
				"2": {TaskID: "2", ETA: day(6), Status: "AlertStatus.off_track"},
			},
		},
	}
	return source, engine
}
