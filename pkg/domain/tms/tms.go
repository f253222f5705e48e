// Package tms defines the contract for task-management source systems that
// projects, tasks and the organizational hierarchy are read from.
package tms

import (
	"context"
	"time"
)

// Entity kinds in a project hierarchy.
const (
	KindProject = "project"
	KindTeam    = "team"
	KindMember  = "member"
)

// Handle is an opaque, connected client for one source-system account.
// Adapters throttle concurrent use of it themselves.
type Handle interface {
	// Account identifies the connected account, e.g. "jira@acme".
	Account() string
}

// ProjectAttrs holds the per-project scheduling attributes reported by the
// source system. Stored projects are named by their FetchProjects key, which
// is also what FetchTasks and FetchHierarchy accept; Name may differ.
type ProjectAttrs struct {
	Name         string   `yaml:"name" json:"name"`
	WorkHours    []int    `yaml:"work_hours,omitempty" json:"workHours,omitempty"`
	Mode         string   `yaml:"mode,omitempty" json:"mode,omitempty"`
	OpenStatus   string   `yaml:"open_status,omitempty" json:"openStatus,omitempty"`
	GracePeriod  float64  `yaml:"grace_period,omitempty" json:"gracePeriod,omitempty"` // hours
	VacationDays []string `yaml:"vacation_days,omitempty" json:"vacationDays,omitempty"`
}

// Task is one work item as fetched from the source system.
type Task struct {
	ID       string     `yaml:"id" json:"id"`
	Key      string     `yaml:"key" json:"key"`
	Summary  string     `yaml:"summary" json:"summary"`
	Assignee string     `yaml:"assignee,omitempty" json:"assignee,omitempty"`
	Status   string     `yaml:"status,omitempty" json:"status,omitempty"`
	Sprint   string     `yaml:"sprint,omitempty" json:"sprint,omitempty"`
	Done     bool       `yaml:"done,omitempty" json:"done,omitempty"`
	Points   float64    `yaml:"points,omitempty" json:"points,omitempty"`
	DueDate  *time.Time `yaml:"due_date,omitempty" json:"dueDate,omitempty"`
	// ETA is a source-provided estimate, used when the prediction engine has none.
	ETA       *time.Time `yaml:"eta,omitempty" json:"eta,omitempty"`
	SprintEnd *time.Time `yaml:"sprint_end,omitempty" json:"sprintEnd,omitempty"`
	URL       string     `yaml:"url,omitempty" json:"url,omitempty"`
}

// Entity is a node of the organizational structure of a project.
type Entity struct {
	ID          string            `yaml:"id" json:"id"`
	DisplayName string            `yaml:"display_name,omitempty" json:"displayName,omitempty"`
	AvatarURLs  map[string]string `yaml:"avatar_urls,omitempty" json:"avatarUrls,omitempty"`
	Kind        string            `yaml:"kind,omitempty" json:"kind,omitempty"`
	Members     []*Entity         `yaml:"members,omitempty" json:"members,omitempty"`
}

// MemberIDs returns the IDs of all member entities under e, e included.
func (e *Entity) MemberIDs() []string {
	if e == nil {
		return nil
	}
	var ids []string
	queue := []*Entity{e}
	for i := 0; i < len(queue); i++ {
		cur := queue[i]
		if cur.Kind == KindMember {
			ids = append(ids, cur.ID)
		}
		queue = append(queue, cur.Members...)
	}
	return ids
}

// Adapter reads data from a task-management system.
type Adapter interface {
	Name() string
	Connect(ctx context.Context) (Handle, error)
	FetchProjects(ctx context.Context, h Handle) (map[string]ProjectAttrs, error)
	FetchTasks(ctx context.Context, h Handle, project string) ([]Task, error)
	FetchHierarchy(ctx context.Context, h Handle, project string) (*Entity, error)
}
