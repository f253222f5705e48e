package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/etabotai/etabot/pkg/domain/messaging"
	"github.com/etabotai/etabot/pkg/domain/report"
	"github.com/etabotai/etabot/pkg/render"
)

// GenerateEmailReport builds and sends the report from the source system's
// current data without refreshing velocities or estimates, and without
// persisting anything.
func (s *EstimationService) GenerateEmailReport(ctx context.Context, owner string, projects, recipients []string) (*RunResult, error) {
	return s.Run(ctx, RunInput{
		Owner:      owner,
		Projects:   projects,
		Recipients: recipients,
		ReportOnly: true,
	})
}

// composeEmail renders one aggregate message over every tree, in the order
// of names.
func composeEmail(r report.Renderer, runID string, now time.Time, names []string, trees map[string]*report.Node) (messaging.Message, error) {
	data := render.EmailData{
		Title:       "Project status " + now.UTC().Format("2006-01-02"),
		GeneratedAt: now,
		RunID:       runID,
	}

	var summary strings.Builder
	for _, name := range names {
		tree := trees[name]
		if tree == nil {
			continue
		}
		root, ok := tree.Report.(*report.BasicReport)
		if !ok {
			return messaging.Message{}, &report.InvariantError{EntityID: tree.EntityID, Reason: "root report is not a basic report"}
		}
		section := render.EmailSection{
			Project:    name,
			Status:     root.ProjectOnTrack,
			ReportHTML: root.HTML(),
		}
		for _, child := range tree.Children() {
			if br, ok := child.Report.(*report.BasicReport); ok {
				section.Entities = append(section.Entities, br.ShortHTML())
			}
		}
		data.Sections = append(data.Sections, section)
		fmt.Fprintf(&summary, "%s: %s\n", name, root.ProjectOnTrack.Label())
	}

	body, err := r.Render(render.TemplateEmail, data)
	if err != nil {
		return messaging.Message{}, fmt.Errorf("render email: %w", err)
	}
	return messaging.Message{
		Subject:  fmt.Sprintf("%s (%d projects)", data.Title, len(data.Sections)),
		HTMLBody: body,
		Summary:  strings.TrimSpace(summary.String()),
		RunID:    runID,
	}, nil
}
