package report

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// brokenReport satisfies Reportable without being a *BasicReport.
type brokenReport struct{}

func (brokenReport) ReportDueDates() *TargetDatesStats { return nil }
func (brokenReport) ReportVelocity() VelocityDicter    { return nil }

func newTestReport(t *testing.T, entity string, statuses ...AlertStatus) *BasicReport {
	t.Helper()
	p := validParams()
	p.EntityID = entity
	p.EntityDisplayName = strings.ToUpper(entity)
	stats := NewTargetDatesStats()
	for i, st := range statuses {
		_ = stats.Record(TaskRecord{ID: fmt.Sprintf("%s-%d", entity, i)}, st)
	}
	p.DueDatesStats = stats
	p.ProjectOnTrack = stats.Overall()
	b, err := NewBasicReport(p, &fakeRenderer{})
	if err != nil {
		t.Fatalf("NewBasicReport() error = %v", err)
	}
	return b
}

func mustAdd(t *testing.T, parent, child *Node) {
	t.Helper()
	if err := parent.AddChild(child); err != nil {
		t.Fatalf("AddChild(%s) error = %v", child.EntityID, err)
	}
}

// buildBinaryTree builds a full tree of the given depth with ids in level order.
func buildBinaryTree(t *testing.T, depth int) *Node {
	t.Helper()
	id := 0
	next := func() *Node {
		name := fmt.Sprintf("n%d", id)
		id++
		return NewNode(newTestReport(t, name, OnTrack), name)
	}
	root := next()
	level := []*Node{root}
	for d := 1; d < depth; d++ {
		var nextLevel []*Node
		for _, parent := range level {
			for i := 0; i < 2; i++ {
				c := next()
				mustAdd(t, parent, c)
				nextLevel = append(nextLevel, c)
			}
		}
		level = nextLevel
	}
	return root
}

func TestNode_AddChildLinksParent(t *testing.T) {
	root := NewNode(newTestReport(t, "root"), "root")
	child := NewNode(newTestReport(t, "child"), "child")

	mustAdd(t, root, child)

	if child.Parent() != root {
		t.Error("child.Parent() is not root")
	}
	if got := root.Children(); len(got) != 1 || got[0] != child {
		t.Errorf("root.Children() = %v", got)
	}
	if root.Parent() != nil {
		t.Error("root.Parent() should be nil")
	}
	if child.Depth() != 1 || root.Depth() != 0 {
		t.Errorf("Depth() = %d/%d", root.Depth(), child.Depth())
	}
}

func TestNode_AddChildRejectsInvalid(t *testing.T) {
	root := NewNode(newTestReport(t, "root"), "root")
	mid := NewNode(newTestReport(t, "mid"), "mid")
	leaf := NewNode(newTestReport(t, "leaf"), "leaf")
	mustAdd(t, root, mid)
	mustAdd(t, mid, leaf)

	tests := []struct {
		name   string
		parent *Node
		child  *Node
		want   error
	}{
		{"nil child", root, nil, ErrNilNode},
		{"self", leaf, leaf, ErrAlreadyParented},
		{"orphan self", root, root, ErrCycle},
		{"ancestor", leaf, root, ErrCycle},
		{"already parented", root, leaf, ErrAlreadyParented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(tt.parent.Children())
			err := tt.parent.AddChild(tt.child)
			if !errors.Is(err, tt.want) {
				t.Errorf("AddChild() error = %v, want %v", err, tt.want)
			}
			if len(tt.parent.Children()) != before {
				t.Error("failed AddChild modified children")
			}
		})
	}
	if root.Parent() != nil {
		t.Error("failed AddChild set a parent on root")
	}
}

func TestNode_AllNodesBreadthFirst(t *testing.T) {
	root := buildBinaryTree(t, 3)

	nodes := root.AllNodes()
	if len(nodes) != 7 {
		t.Fatalf("AllNodes() returned %d nodes, want 7", len(nodes))
	}
	seen := map[*Node]bool{}
	for i, n := range nodes {
		if want := fmt.Sprintf("n%d", i); n.EntityID != want {
			t.Errorf("AllNodes()[%d] = %s, want %s", i, n.EntityID, want)
		}
		if seen[n] {
			t.Errorf("node %s returned twice", n.EntityID)
		}
		seen[n] = true
	}

	reports := root.AllReports()
	if len(reports) != 7 {
		t.Fatalf("AllReports() returned %d, want 7", len(reports))
	}
	for i, r := range reports {
		if r.(*BasicReport).EntityID != nodes[i].EntityID {
			t.Errorf("AllReports()[%d] out of order", i)
		}
	}
}

func TestNode_AllNodesDeepChain(t *testing.T) {
	rep := newTestReport(t, "x")
	root := NewNode(rep, "0")
	cur := root
	for i := 1; i < 10000; i++ {
		n := NewNode(rep, fmt.Sprint(i))
		mustAdd(t, cur, n)
		cur = n
	}
	if got := len(root.AllNodes()); got != 10000 {
		t.Errorf("AllNodes() = %d, want 10000", got)
	}
}

func TestNode_ToDictShape(t *testing.T) {
	root := NewNode(newTestReport(t, "proj", OnTrack, Overdue), "proj")
	mustAdd(t, root, NewNode(newTestReport(t, "alice", OnTrack), "alice"))

	d, err := root.ToDict()
	if err != nil {
		t.Fatalf("ToDict() error = %v", err)
	}
	keys := []string{
		"project", "projectOnTrack", "entityId", "entityDisplayName", "entityAvatarUrls",
		"dueDatesStats", "sprintStats", "velocityReport", "params", "paramsStr",
		"tmsName", "html", "children",
	}
	for _, k := range keys {
		if _, ok := d[k]; !ok {
			t.Errorf("ToDict() missing %q", k)
		}
	}
	if len(d) != len(keys) {
		t.Errorf("ToDict() has %d keys, want %d", len(d), len(keys))
	}
	if d["projectOnTrack"] != Overdue.Ordinal() {
		t.Errorf("projectOnTrack = %v, want %d", d["projectOnTrack"], Overdue.Ordinal())
	}
	if d["entityId"] != "proj" {
		t.Errorf("entityId = %v", d["entityId"])
	}
	children := d["children"].([]any)
	if len(children) != 1 || children[0].(map[string]any)["entityId"] != "alice" {
		t.Errorf("children = %v", children)
	}
	if err := ValidateSerialized(d); err != nil {
		t.Errorf("ValidateSerialized() error = %v", err)
	}
}

func TestNode_ToDictOmitsMalformedChild(t *testing.T) {
	logger, buf := newBufferLogger()
	root := NewNode(newTestReport(t, "proj"), "proj")
	mustAdd(t, root, NewNode(newTestReport(t, "a"), "a"))
	mustAdd(t, root, NewNode(brokenReport{}, "broken"))
	mustAdd(t, root, NewNode(newTestReport(t, "c"), "c"))

	d, err := root.ToDictWithLogger(logger)
	if err != nil {
		t.Fatalf("ToDict() error = %v", err)
	}
	children := d["children"].([]any)
	if len(children) != 2 {
		t.Fatalf("children = %d, want 2", len(children))
	}
	if children[0].(map[string]any)["entityId"] != "a" || children[1].(map[string]any)["entityId"] != "c" {
		t.Errorf("children order not preserved: %v", children)
	}
	logged := buf.String()
	if !strings.Contains(logged, "level=WARN") || !strings.Contains(logged, "broken") {
		t.Errorf("expected a warning naming the child, got %q", logged)
	}
}

func TestNode_ToDictMalformedRootFails(t *testing.T) {
	root := NewNode(brokenReport{}, "root")
	mustAdd(t, root, NewNode(newTestReport(t, "a"), "a"))

	_, err := root.ToDict()
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("ToDict() error = %v, want ErrInvariant", err)
	}
	var ie *InvariantError
	if !errors.As(err, &ie) || ie.EntityID != "root" {
		t.Errorf("error = %#v", err)
	}

	var nilReport *BasicReport
	if _, err := NewNode(nilReport, "nil").ToDict(); !errors.Is(err, ErrInvariant) {
		t.Errorf("nil report error = %v, want ErrInvariant", err)
	}

	noStats := newTestReport(t, "x")
	noStats.DueDatesStats = nil
	if _, err := NewNode(noStats, "x").ToDict(); !errors.Is(err, ErrInvariant) {
		t.Errorf("missing stats error = %v, want ErrInvariant", err)
	}
}

func TestNode_ToDictVelocityFailureSubstitutesEmpty(t *testing.T) {
	logger, buf := newBufferLogger()
	rep := newTestReport(t, "proj")
	rep.VelocityReport.Images["chart"] = Image{ContentType: "image/png"}

	d, err := NewNode(rep, "proj").ToDictWithLogger(logger)
	if err != nil {
		t.Fatalf("ToDict() error = %v", err)
	}
	if v := d["velocityReport"].(map[string]any); len(v) != 0 {
		t.Errorf("velocityReport = %v, want empty", v)
	}
	if !strings.Contains(buf.String(), "velocity report could not be serialized") {
		t.Errorf("missing warning: %q", buf.String())
	}

	rep.VelocityReport = nil
	d, err = NewNode(rep, "proj").ToDictWithLogger(logger)
	if err != nil {
		t.Fatalf("ToDict() with nil velocity error = %v", err)
	}
	if v := d["velocityReport"].(map[string]any); len(v) != 0 {
		t.Errorf("velocityReport = %v, want empty", v)
	}
}

func TestNode_ToDictChildCountsRoundTrip(t *testing.T) {
	root := NewNode(newTestReport(t, "proj"), "proj")
	want := []struct {
		id    string
		total int
	}{}
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("leaf%d", i)
		if i%3 == 1 {
			mustAdd(t, root, NewNode(brokenReport{}, id))
			continue
		}
		statuses := make([]AlertStatus, i+1)
		for j := range statuses {
			statuses[j] = AllStatuses[j%len(AllStatuses)]
		}
		mustAdd(t, root, NewNode(newTestReport(t, id, statuses...), id))
		want = append(want, struct {
			id    string
			total int
		}{id, i + 1})
	}

	d, err := root.ToDict()
	if err != nil {
		t.Fatal(err)
	}
	children := d["children"].([]any)
	if len(children) != len(want) {
		t.Fatalf("children = %d, want %d", len(children), len(want))
	}
	for i, w := range want {
		c := children[i].(map[string]any)
		if c["entityId"] != w.id {
			t.Errorf("children[%d] = %v, want %s", i, c["entityId"], w.id)
		}
		total := c["dueDatesStats"].(map[string]any)["counts"].(map[string]any)["total"]
		if total != w.total {
			t.Errorf("children[%d] total = %v, want %d", i, total, w.total)
		}
	}
}

func TestNode_ToDictIdempotent(t *testing.T) {
	root := buildBinaryTree(t, 3)
	mustAdd(t, root.Children()[0], NewNode(brokenReport{}, "broken"))

	first, err := root.ToDict()
	if err != nil {
		t.Fatal(err)
	}
	second, err := root.ToDict()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("ToDict() output changed between calls")
	}
}

func TestNode_EntityIDFallsBackToReport(t *testing.T) {
	d, err := NewNode(newTestReport(t, "bob"), "").ToDict()
	if err != nil {
		t.Fatal(err)
	}
	if d["entityId"] != "bob" {
		t.Errorf("entityId = %v, want bob", d["entityId"])
	}
}

func TestValidateSerialized_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  any
	}{
		{"nil", nil},
		{"missing fields", map[string]any{"project": "x"}},
		{"bad ordinal", map[string]any{
			"project": "x", "projectOnTrack": 9, "entityId": "",
			"dueDatesStats": NewTargetDatesStats().ToDict(), "sprintStats": NewTargetDatesStats().ToDict(),
			"velocityReport": map[string]any{}, "children": []any{},
		}},
		{"bad child", map[string]any{
			"project": "x", "projectOnTrack": 0, "entityId": "",
			"dueDatesStats": NewTargetDatesStats().ToDict(), "sprintStats": NewTargetDatesStats().ToDict(),
			"velocityReport": map[string]any{}, "children": []any{map[string]any{"project": 3}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateSerialized(tt.doc); !errors.Is(err, ErrInvalidSerialized) {
				t.Errorf("ValidateSerialized() error = %v, want ErrInvalidSerialized", err)
			}
		})
	}
}
