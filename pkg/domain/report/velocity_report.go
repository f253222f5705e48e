package report

import (
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/etabotai/etabot/pkg/domain/analytics"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// NoVelocityHTML is rendered in place of the sprint table when there is no data.
const NoVelocityHTML = "No Velocity report html."

// sprintColumnLabels renames raw identifier columns for display.
var sprintColumnLabels = map[string]string{
	"sprint_id":   "Sprint",
	"sprint_name": "Sprint",
}

// Image is an inline image attached to a velocity report for email embedding.
type Image struct {
	ContentType string
	Data        []byte
}

// RenderOptions controls how the sprint table is rendered.
type RenderOptions struct {
	CSSClass   string
	EscapeText bool
}

// DefaultRenderOptions are used when rendering during construction.
var DefaultRenderOptions = RenderOptions{CSSClass: "etabot-velocity", EscapeText: true}

// VelocityDicter is the serialization capability of a velocity report.
type VelocityDicter interface {
	ToDict() (map[string]any, error)
}

// VelocityReport holds sprint-level velocity statistics for one entity.
type VelocityReport struct {
	// EntityID is nil for aggregate and placeholder reports.
	EntityID       *string
	Summary        string
	SprintStats    analytics.Table
	VelocityVsTime analytics.Table
	VelocityStats  analytics.Table
	RenderedHTML   string
	Images         map[string]Image
	Aux            string
}

// VelocityOption configures a VelocityReport at construction.
type VelocityOption func(*VelocityReport)

// WithVelocityVsTime attaches the engine's velocity-over-time table.
func WithVelocityVsTime(t analytics.Table) VelocityOption {
	return func(r *VelocityReport) { r.VelocityVsTime = t }
}

// WithVelocityStats attaches the engine's velocity summary table.
func WithVelocityStats(t analytics.Table) VelocityOption {
	return func(r *VelocityReport) { r.VelocityStats = t }
}

// WithImages attaches inline images.
func WithImages(images map[string]Image) VelocityOption {
	return func(r *VelocityReport) {
		for k, v := range images {
			r.Images[k] = v
		}
	}
}

// WithAux attaches a free-form note.
func WithAux(aux string) VelocityOption {
	return func(r *VelocityReport) { r.Aux = aux }
}

// NewVelocityReport builds a report and renders its HTML eagerly.
func NewVelocityReport(entityID *string, summary string, sprintStats analytics.Table, opts ...VelocityOption) *VelocityReport {
	r := &VelocityReport{
		EntityID:       entityID,
		Summary:        summary,
		SprintStats:    sprintStats,
		VelocityVsTime: analytics.Table{},
		VelocityStats:  analytics.Table{},
		Images:         make(map[string]Image),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.RenderedHTML = r.RenderHTML(DefaultRenderOptions)
	return r
}

// RenderHTML renders the sprint table, or NoVelocityHTML when there are no
// sprints. Rendering failures also produce NoVelocityHTML.
func (r *VelocityReport) RenderHTML(opts RenderOptions) (html string) {
	if r == nil || r.SprintStats.Empty() {
		return NoVelocityHTML
	}
	defer func() {
		if rec := recover(); rec != nil {
			html = NoVelocityHTML
		}
	}()

	tw := table.NewWriter()
	tw.Style().HTML = table.HTMLOptions{
		CSSClass:    opts.CSSClass,
		EmptyColumn: "&nbsp;",
		EscapeText:  opts.EscapeText,
		Newline:     "<br/>",
	}
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	header := make(table.Row, 0, len(r.SprintStats.Columns))
	for _, c := range r.SprintStats.Columns {
		if label, ok := sprintColumnLabels[c]; ok {
			c = label
		}
		header = append(header, c)
	}
	tw.AppendHeader(header)
	for _, row := range r.SprintStats.Rows {
		tr := make(table.Row, 0, len(row))
		for _, v := range row {
			tr = append(tr, v)
		}
		tw.AppendRow(tr)
	}
	out := tw.RenderHTML()
	if out == "" {
		return NoVelocityHTML
	}
	return out
}

// ToDict returns {summary, html, images}. The tables are not part of the
// serialized form.
func (r *VelocityReport) ToDict() (map[string]any, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil report", ErrInvalidVelocityReport)
	}
	names := make([]string, 0, len(r.Images))
	for name := range r.Images {
		names = append(names, name)
	}
	sort.Strings(names)

	images := make(map[string]any, len(r.Images))
	for _, name := range names {
		img := r.Images[name]
		if len(img.Data) == 0 {
			return nil, fmt.Errorf("%w: image %q has no data", ErrInvalidVelocityReport, name)
		}
		images[name] = map[string]any{
			"contentType": img.ContentType,
			"data":        base64.StdEncoding.EncodeToString(img.Data),
		}
	}
	return map[string]any{
		"summary": r.Summary,
		"html":    r.RenderedHTML,
		"images":  images,
	}, nil
}
