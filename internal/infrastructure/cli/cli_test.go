package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/etabotai/etabot/pkg/application"
	"github.com/etabotai/etabot/pkg/domain"
	"github.com/etabotai/etabot/pkg/domain/report"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	fixture, err := filepath.Abs(filepath.Join("..", "fixture", "testdata", "demo.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := fmt.Sprintf(`owner: demo
log:
  level: error
store:
  path: %s
tms:
  type: fixture
  fixture: %s
pipeline:
  workers: 2
  prediction_timeout: 30s
  report_dir: %s
`, filepath.Join(dir, "etabot.db"), fixture, filepath.Join(dir, "reports"))
	path := filepath.Join(dir, "etabot.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	estimateProjects, estimateTo, estimateJSON = nil, nil, false
	projectsJSON, reportJSON, runsJSON = false, false, false

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{{"estimate"}, {"email-report"}, {"projects", "parse"}, {"projects", "list"}, {"report", "show"}, {"runs", "list"}, {"runs", "show"}} {
		cmd, _, err := RootCmd.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not registered: %v", path, err)
		}
	}
}

func TestFixtureWorkflow(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "projects", "parse", "--config", cfg)
	if err != nil {
		t.Fatalf("projects parse: %v\n%s", err, out)
	}
	if !strings.Contains(out, "new projects: 2") {
		t.Errorf("parse output = %q", out)
	}

	out, err = run(t, "estimate", "--config", cfg, "--json")
	if err != nil {
		t.Fatalf("estimate: %v\n%s", err, out)
	}
	var sum runSummary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("estimate output is not JSON: %v\n%s", err, out)
	}
	if sum.Stage != application.StateDone || len(sum.Projects) != 2 {
		t.Errorf("summary = %+v", sum)
	}

	out, err = run(t, "runs", "show", sum.RunID, "--config", cfg)
	if err != nil || !strings.Contains(out, "run.finished") || !strings.Contains(out, "chain verified") {
		t.Errorf("runs show: %v\n%s", err, out)
	}
	out, err = run(t, "runs", "list", "--config", cfg, "--json")
	var runs []runInfo
	if err != nil || json.Unmarshal([]byte(out), &runs) != nil {
		t.Fatalf("runs list: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].RunID != sum.RunID || runs[0].Outcome != "done" {
		t.Errorf("runs = %+v", runs)
	}

	out, err = run(t, "report", "show", "Buckwheat", "--config", cfg)
	if err != nil {
		t.Fatalf("report show: %v\n%s", err, out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 || !strings.Contains(lines[1], "Core team") || !strings.HasPrefix(lines[2], "    ") {
		t.Errorf("tree output =\n%s", out)
	}

	out, err = run(t, "projects", "list", "--config", cfg)
	if err != nil || !strings.Contains(out, "Cheburashka") {
		t.Errorf("projects list: %v\n%s", err, out)
	}
}

func TestReportShowUnknownProject(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "report", "show", "Nope", "--config", cfg)
	var cliErr *CLIError
	if err == nil || !errors.As(err, &cliErr) || !strings.Contains(cliErr.Hint, "projects parse") {
		t.Fatalf("report show error = %v", err)
	}
}

func TestRunsShowUnknownRun(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "runs", "show", "nope", "--config", cfg)
	var cliErr *CLIError
	if err == nil || !errors.As(err, &cliErr) || !strings.Contains(cliErr.Hint, "runs list") {
		t.Fatalf("runs show error = %v", err)
	}
}

func TestSummarizeRuns(t *testing.T) {
	t0 := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{RunID: "a", Timestamp: t0, Action: domain.ActionRunStarted},
		{RunID: "b", Timestamp: t0.Add(time.Minute), Action: domain.ActionRunStarted},
		{RunID: "a", Timestamp: t0.Add(2 * time.Minute), Action: domain.ActionStage, Metadata: map[string]any{"stage": "init"}},
		{RunID: "a", Timestamp: t0.Add(3 * time.Minute), Action: domain.ActionRunFailed, Metadata: map[string]any{"stage": "estimates_computed"}},
	}
	got := summarizeRuns(events)
	if len(got) != 2 {
		t.Fatalf("summarizeRuns() = %+v", got)
	}
	if got[0].RunID != "b" || got[0].Outcome != "running" {
		t.Errorf("newest run = %+v", got[0])
	}
	if got[1].Outcome != "failed" || got[1].Stage != "estimates_computed" {
		t.Errorf("run a = %+v", got[1])
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		in   any
		want report.AlertStatus
	}{
		{float64(0), report.OnTrack},
		{float64(4), report.Overdue},
		{2, report.OffTrack},
		{float64(9), report.Unknown},
		{"on_track", report.Unknown},
		{nil, report.Unknown},
	}
	for _, tt := range tests {
		if got := statusOf(tt.in); got != tt.want {
			t.Errorf("statusOf(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPrintReportTree(t *testing.T) {
	doc := map[string]any{
		"entityId":       "web",
		"projectOnTrack": float64(1),
		"dueDatesStats":  map[string]any{"counts": map[string]any{"total": float64(3)}},
		"children": []any{
			map[string]any{"entityId": "a", "entityDisplayName": "Alice", "children": []any{}},
			map[string]any{"entityId": "b", "children": []any{
				map[string]any{"entityId": "c"},
			}},
		},
	}
	var buf bytes.Buffer
	printReportTree(&buf, doc)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %q", lines)
	}
	wantOrder := []string{"web", "Alice", "b", "c"}
	for i, w := range wantOrder {
		if !strings.Contains(lines[i], w) {
			t.Errorf("line %d = %q, want %q", i, lines[i], w)
		}
	}
	if !strings.Contains(lines[0], "(3 tasks)") || !strings.Contains(lines[1], "(no tasks)") {
		t.Errorf("counts missing: %q", lines)
	}
	if !strings.HasPrefix(lines[3], "    ") {
		t.Errorf("grandchild not indented: %q", lines[3])
	}
}
