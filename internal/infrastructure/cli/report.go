package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var reportJSON bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect stored reports",
}

var reportShowCmd = &cobra.Command{
	Use:   "show PROJECT",
	Short: "Show the last report of a project as a tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		doc, err := s.services.Projects.GetReport(cmd.Context(), s.cfg.Owner, args[0])
		if err != nil {
			return MapError(err)
		}
		if reportJSON {
			return writeJSON(cmd.OutOrStdout(), doc)
		}
		printReportTree(cmd.OutOrStdout(), doc)
		return nil
	},
}

func init() {
	reportShowCmd.Flags().BoolVar(&reportJSON, "json", false, "output the stored report as JSON")
	reportCmd.AddCommand(reportShowCmd)
	RootCmd.AddCommand(reportCmd)
}

// printReportTree writes one line per entity, children indented under
// their parent.
func printReportTree(w io.Writer, doc map[string]any) {
	type item struct {
		node  map[string]any
		depth int
	}
	stack := []item{{doc, 0}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		name, _ := cur.node["entityDisplayName"].(string)
		if name == "" {
			name, _ = cur.node["entityId"].(string)
		}
		line := fmt.Sprintf("%s%s  %s  %s",
			strings.Repeat("  ", cur.depth),
			titleStyle.Render(name),
			styledStatus(statusOf(cur.node["projectOnTrack"])),
			taskCounts(cur.node),
		)
		fmt.Fprintln(w, line)

		children, _ := cur.node["children"].([]any)
		for i := len(children) - 1; i >= 0; i-- {
			if child, ok := children[i].(map[string]any); ok {
				stack = append(stack, item{child, cur.depth + 1})
			}
		}
	}
}

func taskCounts(node map[string]any) string {
	stats, _ := node["dueDatesStats"].(map[string]any)
	counts, _ := stats["counts"].(map[string]any)
	total, ok := counts["total"]
	if !ok {
		return "(no tasks)"
	}
	return fmt.Sprintf("(%v tasks)", total)
}
