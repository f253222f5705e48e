// Package render turns reports into HTML with the embedded templates.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/etabotai/etabot/pkg/domain/report"
)

// TemplateEmail is the aggregate email body.
const TemplateEmail = "email"

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// EmailData is the context of the email template.
type EmailData struct {
	Title       string
	GeneratedAt time.Time
	RunID       string
	Sections    []EmailSection
}

// EmailSection is one project in the aggregate email.
type EmailSection struct {
	Project    string
	Status     report.AlertStatus
	ReportHTML string
	// Entities holds the short fragments of the project's teams and members.
	Entities []string
}

// Renderer executes named templates. It is safe for concurrent use.
type Renderer struct {
	tmpl *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	tmpl, err := template.New("etabot").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			// Fragments produced by this package and by go-pretty are trusted.
			"safe":     func(s string) template.HTML { return template.HTML(s) },
			"statuses": func() []report.AlertStatus { return report.AllStatuses },
			"date":     formatDate,
		}).
		ParseFS(templateFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// MustNew is New for static initialization.
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Render executes the template called name.
func (r *Renderer) Render(name string, data any) (string, error) {
	t := r.tmpl.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("template %q not found", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func formatDate(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format("2006-01-02")
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format("2006-01-02")
	default:
		return ""
	}
}
