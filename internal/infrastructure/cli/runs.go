package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/etabotai/etabot/pkg/domain"
)

var runsJSON bool

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the audit log of estimation runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		events, err := s.services.Workspace.Audit.Events(cmd.Context(), "")
		if err != nil {
			return err
		}
		if err := domain.VerifyChain(events); err != nil {
			return MapError(err)
		}
		runs := summarizeRuns(events)
		if runsJSON {
			return writeJSON(cmd.OutOrStdout(), runs)
		}
		tw := newTable("Run", "Started", "Outcome", "Stage")
		for _, r := range runs {
			tw.AppendRow([]any{r.RunID, r.Started.Format(time.RFC3339), r.Outcome, r.Stage})
		}
		fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show the recorded events of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		// Runs interleave in the log, so the chain is checked as a whole.
		all, err := s.services.Workspace.Audit.Events(cmd.Context(), "")
		if err != nil {
			return err
		}
		if err := domain.VerifyChain(all); err != nil {
			return MapError(err)
		}
		var events []domain.Event
		for _, e := range all {
			if e.RunID == args[0] {
				events = append(events, e)
			}
		}
		if len(events) == 0 {
			return NewCLIError("run "+args[0]+" not found", "Run 'etabot runs list' to see recorded runs", nil)
		}
		if runsJSON {
			return writeJSON(cmd.OutOrStdout(), events)
		}
		printRunEvents(cmd.OutOrStdout(), events)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runsListCmd, runsShowCmd} {
		cmd.Flags().BoolVar(&runsJSON, "json", false, "output as JSON")
	}
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	RootCmd.AddCommand(runsCmd)
}

type runInfo struct {
	RunID   string    `json:"run_id"`
	Started time.Time `json:"started"`
	Outcome string    `json:"outcome"`
	Stage   string    `json:"stage,omitempty"`
}

// summarizeRuns folds the log into one entry per run. A run without a
// finish event is reported as running.
func summarizeRuns(events []domain.Event) []runInfo {
	byID := map[string]*runInfo{}
	var order []*runInfo
	for _, e := range events {
		r, ok := byID[e.RunID]
		if !ok {
			r = &runInfo{RunID: e.RunID, Started: e.Timestamp, Outcome: "running"}
			byID[e.RunID] = r
			order = append(order, r)
		}
		switch e.Action {
		case domain.ActionStage:
			r.Stage, _ = e.Metadata["stage"].(string)
		case domain.ActionRunFinished:
			r.Outcome = "done"
		case domain.ActionRunFailed:
			r.Outcome = "failed"
			r.Stage, _ = e.Metadata["stage"].(string)
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].Started.After(order[j].Started) })
	out := make([]runInfo, len(order))
	for i, r := range order {
		out[i] = *r
	}
	return out
}

func printRunEvents(w io.Writer, events []domain.Event) {
	tw := newTable("Time", "Event", "Stage", "Status", "Details")
	for _, e := range events {
		stage, _ := e.Metadata["stage"].(string)
		status, _ := e.Metadata["status"].(string)
		var details []string
		switch e.Action {
		case domain.ActionStage:
			if reasons, ok := e.Metadata["reasons"].([]any); ok && len(reasons) > 0 {
				details = append(details, fmt.Sprintf("%d reasons", len(reasons)))
			}
		case domain.ActionRunFailed:
			if msg, ok := e.Metadata["error"].(string); ok {
				details = append(details, msg)
			}
		case domain.ActionRunStarted:
			if projects, ok := e.Metadata["projects"].([]any); ok && len(projects) > 0 {
				details = append(details, fmt.Sprintf("projects %v", projects))
			}
		}
		tw.AppendRow([]any{e.Timestamp.Format(time.RFC3339), e.Action, stage, status, strings.Join(details, "; ")})
	}
	fmt.Fprintln(w, tw.Render())
	fmt.Fprintln(w, "chain verified")
}
