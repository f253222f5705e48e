package cli

import (
	"encoding/json"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/etabotai/etabot/pkg/domain/report"
)

var statusStyles = map[report.AlertStatus]lipgloss.Style{
	report.OnTrack:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	report.AtRisk:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	report.OffTrack: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	report.Overdue:  lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true),
	report.Unknown:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func styledStatus(s report.AlertStatus) string {
	return statusStyles[s].Render(s.Label())
}

// statusOf reads a persisted projectOnTrack ordinal, which JSON decoding
// turns into a float64.
func statusOf(v any) report.AlertStatus {
	var n int
	switch x := v.(type) {
	case float64:
		n = int(x)
	case int:
		n = x
	default:
		return report.Unknown
	}
	if s, ok := report.FromOrdinal(n); ok {
		return s
	}
	return report.Unknown
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row(header))
	return tw
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
