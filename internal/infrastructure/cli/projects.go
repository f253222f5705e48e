package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var projectsJSON bool

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage the stored projects",
}

var projectsParseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Import projects from the task-management system",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		summary, err := s.services.Projects.ParseProjects(cmd.Context(), s.cfg.Owner)
		if err != nil && summary == nil {
			return MapError(err)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, summary)
		if len(summary.New) > 0 {
			fmt.Fprintf(w, "  new: %s\n", strings.Join(summary.New, ", "))
		}
		if len(summary.Updated) > 0 {
			fmt.Fprintf(w, "  updated: %s\n", strings.Join(summary.Updated, ", "))
		}
		return MapError(err)
	},
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the stored projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		projects, err := s.services.Projects.ListProjects(cmd.Context(), s.cfg.Owner)
		if err != nil {
			return MapError(err)
		}
		w := cmd.OutOrStdout()
		if projectsJSON {
			return writeJSON(w, projects)
		}

		tw := newTable("Project", "Mode", "Grace (h)", "Velocity", "Last report")
		for _, p := range projects {
			velocity := "-"
			if v, ok := p.Velocities["value"].(float64); ok {
				velocity = fmt.Sprintf("%.2f", v)
			}
			reportDate, _ := p.Settings["report_date"].(string)
			if reportDate == "" {
				reportDate = "never"
			}
			tw.AppendRow([]any{p.Name, p.Mode, p.GracePeriod, velocity, reportDate})
		}
		fmt.Fprintln(w, tw.Render())
		return nil
	},
}

func init() {
	projectsListCmd.Flags().BoolVar(&projectsJSON, "json", false, "output in JSON format")
	projectsCmd.AddCommand(projectsParseCmd, projectsListCmd)
	RootCmd.AddCommand(projectsCmd)
}
