package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/etabotai/etabot/pkg/domain/analytics"
)

// Template names used to render a BasicReport.
const (
	TemplateFull  = "report_full"
	TemplateShort = "report_short"
)

// NoDataHTML replaces report HTML that could not be rendered.
const NoDataHTML = "<p>No data available.</p>"

// Aux keys set by this package.
const (
	AuxMessage     = "message"
	AuxRenderError = "render_error"
)

// Renderer renders a named template with the given context.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// BasicReportParams are the inputs of NewBasicReport.
type BasicReportParams struct {
	Project           string
	EntityID          string
	EntityDisplayName string
	EntityAvatarURLs  map[string]string
	ProjectOnTrack    AlertStatus
	DueDatesStats     *TargetDatesStats
	SprintStats       *TargetDatesStats
	VelocityReport    *VelocityReport
	Params            map[string]any
	TMSName           string
	Aux               map[string]any
}

// BasicReport is a self-contained, renderable snapshot of one entity's status.
type BasicReport struct {
	Project           string
	EntityID          string
	EntityDisplayName string
	EntityAvatarURLs  map[string]string
	ProjectOnTrack    AlertStatus
	DueDatesStats     *TargetDatesStats
	SprintStats       *TargetDatesStats
	VelocityReport    *VelocityReport
	Params            map[string]any
	ParamsStr         string
	TMSName           string
	Aux               map[string]any

	html      string
	shortHTML string
}

// NewBasicReport validates required fields, freezes the stats and renders
// the full and short HTML with r. A nil r or a failing template yields
// NoDataHTML and a render_error note in Aux.
func NewBasicReport(p BasicReportParams, r Renderer) (*BasicReport, error) {
	switch {
	case p.Project == "":
		return nil, &FieldError{Field: "project"}
	case p.DueDatesStats == nil:
		return nil, &FieldError{Field: "due dates stats"}
	case p.SprintStats == nil:
		return nil, &FieldError{Field: "sprint stats"}
	case p.VelocityReport == nil:
		return nil, &FieldError{Field: "velocity report"}
	}

	status := p.ProjectOnTrack
	if !status.Valid() {
		status = Unknown
	}

	b := &BasicReport{
		Project:           p.Project,
		EntityID:          p.EntityID,
		EntityDisplayName: p.EntityDisplayName,
		EntityAvatarURLs:  copyStrings(p.EntityAvatarURLs),
		ProjectOnTrack:    status,
		DueDatesStats:     p.DueDatesStats,
		SprintStats:       p.SprintStats,
		VelocityReport:    p.VelocityReport,
		Params:            copyAny(p.Params),
		ParamsStr:         formatParams(p.Params),
		TMSName:           p.TMSName,
		Aux:               copyAny(p.Aux),
	}
	if b.EntityDisplayName == "" {
		b.EntityDisplayName = b.Project
	}
	b.DueDatesStats.Freeze()
	b.SprintStats.Freeze()

	b.html = b.render(r, TemplateFull)
	b.shortHTML = b.render(r, TemplateShort)
	return b, nil
}

// EmptyReport returns the placeholder report for a project with no usable data.
func EmptyReport(project string, r Renderer) *BasicReport {
	return EmptyEntityReport(project, "", "", "no data available for this project", r)
}

// EmptyEntityReport returns the placeholder report for one entity with no
// usable data. It has the same shape as any other report, with Unknown status.
func EmptyEntityReport(project, entityID, displayName, reason string, r Renderer) *BasicReport {
	if project == "" {
		project = "unknown project"
	}
	var id *string
	if entityID != "" {
		id = &entityID
	}
	b, err := NewBasicReport(BasicReportParams{
		Project:           project,
		EntityID:          entityID,
		EntityDisplayName: displayName,
		ProjectOnTrack:    Unknown,
		DueDatesStats:     NewTargetDatesStats(),
		SprintStats:       NewTargetDatesStats(),
		VelocityReport:    NewVelocityReport(id, "No velocity data available.", analytics.Table{}),
		Params:            map[string]any{},
		Aux:               map[string]any{AuxMessage: reason},
	}, r)
	if err != nil {
		panic(fmt.Sprintf("report: empty report construction failed: %v", err))
	}
	return b
}

// IsEmpty reports whether b was built by EmptyReport or EmptyEntityReport.
func (b *BasicReport) IsEmpty() bool {
	_, ok := b.Aux[AuxMessage]
	return ok && b.ProjectOnTrack == Unknown && b.DueDatesStats.Total() == 0
}

// HTML returns the rendered full report.
func (b *BasicReport) HTML() string { return b.html }

// ShortHTML returns the rendered short report.
func (b *BasicReport) ShortHTML() string { return b.shortHTML }

// ReportDueDates implements Reportable.
func (b *BasicReport) ReportDueDates() *TargetDatesStats { return b.DueDatesStats }

// ReportVelocity implements Reportable.
func (b *BasicReport) ReportVelocity() VelocityDicter {
	if b.VelocityReport == nil {
		return nil
	}
	return b.VelocityReport
}

func (b *BasicReport) render(r Renderer, name string) string {
	if r == nil {
		b.Aux[AuxRenderError] = "no renderer configured"
		return NoDataHTML
	}
	out, err := r.Render(name, b)
	if err != nil {
		b.Aux[AuxRenderError] = err.Error()
		return NoDataHTML
	}
	return out
}

func formatParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, params[k]))
	}
	return strings.Join(parts, ", ")
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyAny(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
