// Package project holds the persisted project entity, the OAuth credentials
// used to reach source systems, and the store contract for both.
package project

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/etabotai/etabot/pkg/domain/tms"
)

// Keys of Project.Settings written by an estimation run.
const (
	SettingReport             = "report"
	SettingReportDate         = "report_date"
	SettingHierarchicalReport = "hierarchical_report"
)

// DefaultGracePeriod is used when the source system reports none, in hours.
const DefaultGracePeriod = 12.0

// Modes a project can be planned in.
const (
	ModeScrum  = "scrum"
	ModeKanban = "kanban"
)

// Project is one source-system project tracked by the estimator.
type Project struct {
	Name         string         `json:"name"`
	Owner        string         `json:"owner"`
	TMS          string         `json:"tms"`
	Mode         string         `json:"mode"`
	OpenStatus   string         `json:"openStatus"`
	GracePeriod  float64        `json:"gracePeriod"`
	WorkHours    []int          `json:"workHours"`
	VacationDays []string       `json:"vacationDays"`
	Velocities   map[string]any `json:"velocities,omitempty"`
	Settings     map[string]any `json:"settings,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// FromAttrs creates a project from source-system attributes, applying defaults.
func FromAttrs(owner, account string, attrs tms.ProjectAttrs) *Project {
	p := &Project{
		Name:  attrs.Name,
		Owner: owner,
		TMS:   account,
	}
	p.Apply(attrs)
	return p
}

// Apply overwrites the scheduling attributes of p with attrs. Velocities and
// settings are left alone.
func (p *Project) Apply(attrs tms.ProjectAttrs) {
	p.Mode = strings.ToLower(attrs.Mode)
	if p.Mode == "" {
		p.Mode = ModeScrum
	}
	p.OpenStatus = attrs.OpenStatus
	p.GracePeriod = attrs.GracePeriod
	if p.GracePeriod <= 0 {
		p.GracePeriod = DefaultGracePeriod
	}
	p.WorkHours = append([]int(nil), attrs.WorkHours...)
	p.VacationDays = append([]string(nil), attrs.VacationDays...)
}

// Grace returns the grace period as a duration.
func (p *Project) Grace() time.Duration {
	return time.Duration(p.GracePeriod * float64(time.Hour))
}

// Validate checks the fields the store relies on.
func (p *Project) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if p.Mode != ModeScrum && p.Mode != ModeKanban {
		return &ValidationError{Project: p.Name, Field: "mode", Reason: "must be scrum or kanban"}
	}
	if p.GracePeriod < 0 {
		return &ValidationError{Project: p.Name, Field: "grace_period", Reason: "must not be negative"}
	}
	return nil
}

// Params returns the report parameters shown alongside the project's report.
func (p *Project) Params() map[string]any {
	return map[string]any{
		"mode":          p.Mode,
		"open_status":   p.OpenStatus,
		"grace_period":  p.GracePeriod,
		"work_hours":    append([]int(nil), p.WorkHours...),
		"vacation_days": append([]string(nil), p.VacationDays...),
	}
}

// Clone returns a deep enough copy for a stage to modify settings without
// touching the original.
func (p *Project) Clone() *Project {
	c := *p
	c.WorkHours = append([]int(nil), p.WorkHours...)
	c.VacationDays = append([]string(nil), p.VacationDays...)
	c.Velocities = maps.Clone(p.Velocities)
	c.Settings = maps.Clone(p.Settings)
	return &c
}

// Store persists projects and tokens. Save is last-writer-wins per project.
type Store interface {
	Save(ctx context.Context, p *Project) error
	Get(ctx context.Context, owner, name string) (*Project, error)
	List(ctx context.Context, owner string) ([]*Project, error)
	SaveToken(ctx context.Context, t *OAuthToken) error
	FindToken(ctx context.Context, f TokenFilter) (*OAuthToken, error)
}
