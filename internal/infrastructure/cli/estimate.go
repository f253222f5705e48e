package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/etabotai/etabot/pkg/application"
	"github.com/etabotai/etabot/pkg/domain/report"
)

var (
	estimateProjects []string
	estimateTo       []string
	estimateJSON     bool
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Run the estimation pipeline and email the reports",
	Long: `Estimate refreshes velocities, predicts task completion dates, builds the
report of every project, team and member, emails it and stores it.

Flags:
  --project   Limit the run to these projects (default: all stored projects)
  --to        Recipients (default: email.to from the config)
  --json      Output the run summary as JSON`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		res, err := s.services.Estimation.Run(cmd.Context(), application.RunInput{
			Owner:      s.cfg.Owner,
			Projects:   estimateProjects,
			Recipients: estimateTo,
		})
		if err != nil {
			return MapError(err)
		}
		return printRun(cmd.OutOrStdout(), res, estimateJSON)
	},
}

var emailReportCmd = &cobra.Command{
	Use:   "email-report",
	Short: "Email the current report without refreshing estimates",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		res, err := s.services.Estimation.GenerateEmailReport(cmd.Context(), s.cfg.Owner, estimateProjects, estimateTo)
		if err != nil {
			return MapError(err)
		}
		return printRun(cmd.OutOrStdout(), res, estimateJSON)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{estimateCmd, emailReportCmd} {
		cmd.Flags().StringSliceVar(&estimateProjects, "project", nil, "project to include (repeatable)")
		cmd.Flags().StringSliceVar(&estimateTo, "to", nil, "recipient address (repeatable)")
		cmd.Flags().BoolVar(&estimateJSON, "json", false, "output in JSON format")
		RootCmd.AddCommand(cmd)
	}
}

type runSummary struct {
	RunID       string            `json:"run_id"`
	Stage       string            `json:"stage"`
	FailedStage string            `json:"failed_stage,omitempty"`
	Projects    []projectSummary  `json:"projects"`
	Degraded    []string          `json:"degraded,omitempty"`
	EmailError  string            `json:"email_error,omitempty"`
	Persist     map[string]string `json:"persist_errors,omitempty"`
}

type projectSummary struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Entities int    `json:"entities"`
	Tasks    int    `json:"tasks"`

	status report.AlertStatus
}

func summarize(res *application.RunResult) runSummary {
	sum := runSummary{
		RunID:       res.RunID,
		Stage:       res.Stage,
		FailedStage: res.FailedStage,
		Degraded:    res.Degraded,
	}
	if res.EmailErr != nil {
		sum.EmailError = res.EmailErr.Error()
	}
	if len(res.PersistErrors) > 0 {
		sum.Persist = make(map[string]string, len(res.PersistErrors))
		for name, err := range res.PersistErrors {
			sum.Persist[name] = err.Error()
		}
	}
	for _, name := range slices.Sorted(maps.Keys(res.Trees)) {
		tree := res.Trees[name]
		ps := projectSummary{Name: name, Entities: len(tree.AllNodes()), status: report.Unknown}
		if br, ok := tree.Report.(*report.BasicReport); ok {
			ps.status = br.ProjectOnTrack
			ps.Tasks = br.DueDatesStats.Total()
		}
		ps.Status = ps.status.String()
		sum.Projects = append(sum.Projects, ps)
	}
	return sum
}

func printRun(w io.Writer, res *application.RunResult, asJSON bool) error {
	sum := summarize(res)
	if asJSON {
		return writeJSON(w, sum)
	}

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Run %s: %s", sum.RunID, sum.Stage)))
	tw := newTable("Project", "Status", "Entities", "Open tasks")
	for _, p := range sum.Projects {
		tw.AppendRow([]any{p.Name, styledStatus(p.status), p.Entities, p.Tasks})
	}
	fmt.Fprintln(w, tw.Render())

	for _, d := range sum.Degraded {
		fmt.Fprintln(w, warnStyle.Render("degraded: "+d))
	}
	if sum.EmailError != "" {
		fmt.Fprintln(w, warnStyle.Render("email not delivered: "+sum.EmailError))
	}
	for _, name := range slices.Sorted(maps.Keys(sum.Persist)) {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("not saved: %s: %s", name, sum.Persist[name])))
	}
	return nil
}
