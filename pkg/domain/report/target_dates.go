package report

import (
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// SummaryPlaceholder is the summary table text before stats are rendered.
const SummaryPlaceholder = "summary table is not ready"

// TaskRecord is the display form of one task inside a stats bucket.
type TaskRecord struct {
	ID       string
	Key      string
	Summary  string
	Assignee string
	Status   string
	Sprint   string
	DueDate  *time.Time
	ETA      *time.Time
	URL      string
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func (r TaskRecord) toDict() map[string]any {
	return map[string]any{
		"id":       r.ID,
		"key":      r.Key,
		"summary":  r.Summary,
		"assignee": r.Assignee,
		"status":   r.Status,
		"sprint":   r.Sprint,
		"url":      r.URL,
		"dueDate":  formatTime(r.DueDate),
		"eta":      formatTime(r.ETA),
	}
}

// TargetDatesStats buckets one entity's tasks by AlertStatus.
// Every status always has a (possibly empty) bucket and Total is the sum of
// all bucket counts.
type TargetDatesStats struct {
	SummaryTable string

	tasks  map[AlertStatus][]TaskRecord
	counts map[AlertStatus]int
	total  int
	frozen bool
}

// NewTargetDatesStats returns stats with every status bucket present and empty.
func NewTargetDatesStats() *TargetDatesStats {
	s := &TargetDatesStats{
		SummaryTable: SummaryPlaceholder,
		tasks:        make(map[AlertStatus][]TaskRecord, len(AllStatuses)),
		counts:       make(map[AlertStatus]int, len(AllStatuses)),
	}
	for _, st := range AllStatuses {
		s.tasks[st] = []TaskRecord{}
		s.counts[st] = 0
	}
	return s
}

// Record appends task to the bucket for status. Invalid statuses land in Unknown.
// On a zero-value TargetDatesStats the buckets are created first.
func (s *TargetDatesStats) Record(task TaskRecord, status AlertStatus) error {
	if s.frozen {
		return ErrStatsFrozen
	}
	if !status.Valid() {
		status = Unknown
	}
	if s.tasks == nil {
		fresh := NewTargetDatesStats()
		s.tasks, s.counts = fresh.tasks, fresh.counts
	}
	s.tasks[status] = append(s.tasks[status], task)
	s.counts[status]++
	s.total++
	return nil
}

// Count returns the number of tasks recorded under status.
func (s *TargetDatesStats) Count(status AlertStatus) int {
	return s.counts[status]
}

// Total returns the number of recorded tasks.
func (s *TargetDatesStats) Total() int {
	return s.total
}

// Tasks returns a copy of the tasks recorded under status.
func (s *TargetDatesStats) Tasks(status AlertStatus) []TaskRecord {
	return append([]TaskRecord(nil), s.tasks[status]...)
}

// Frozen reports whether the stats are attached to a report.
func (s *TargetDatesStats) Frozen() bool {
	return s.frozen
}

// Freeze renders the summary table if needed and rejects further records.
func (s *TargetDatesStats) Freeze() {
	if s.frozen {
		return
	}
	if s.SummaryTable == SummaryPlaceholder {
		s.RenderSummaryTable()
	}
	s.frozen = true
}

// Overall rolls the buckets up into one status: the worst known status wins,
// Unknown only when nothing is known.
func (s *TargetDatesStats) Overall() AlertStatus {
	worst := Unknown
	for _, st := range AllStatuses {
		if s.counts[st] > 0 && st.Severity() > worst.Severity() {
			worst = st
		}
	}
	return worst
}

// RenderSummaryTable renders the per-status counts into SummaryTable.
func (s *TargetDatesStats) RenderSummaryTable() string {
	tw := table.NewWriter()
	tw.Style().HTML = table.HTMLOptions{
		CSSClass:    "etabot-summary",
		EmptyColumn: "&nbsp;",
		EscapeText:  true,
		Newline:     "<br/>",
	}
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"Status", "Tasks"})
	for _, st := range AllStatuses {
		tw.AppendRow(table.Row{st.Label(), s.counts[st]})
	}
	tw.AppendFooter(table.Row{"Total", s.total})
	if !s.frozen {
		s.SummaryTable = tw.RenderHTML()
	}
	return s.SummaryTable
}

// ToDict returns the serializable form of the stats. A nil receiver
// serializes as empty stats.
func (s *TargetDatesStats) ToDict() map[string]any {
	if s == nil {
		s = NewTargetDatesStats()
	}
	tasks := make(map[string]any, len(AllStatuses))
	counts := make(map[string]any, len(AllStatuses)+1)
	for _, st := range AllStatuses {
		recs := make([]any, 0, len(s.tasks[st]))
		for _, r := range s.tasks[st] {
			recs = append(recs, r.toDict())
		}
		tasks[st.String()] = recs
		counts[st.String()] = s.counts[st]
	}
	counts["total"] = s.total
	return map[string]any{
		"summaryTable": s.SummaryTable,
		"tasks":        tasks,
		"counts":       counts,
	}
}

// String returns a compact one-line count summary.
func (s *TargetDatesStats) String() string {
	out := "total=" + strconv.Itoa(s.total)
	for _, st := range AllStatuses {
		out += " " + st.String() + "=" + strconv.Itoa(s.counts[st])
	}
	return out
}
