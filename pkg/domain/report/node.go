package report

import (
	"fmt"
	"log/slog"
)

// Reportable is what a Node needs from its report to serialize it.
type Reportable interface {
	ReportDueDates() *TargetDatesStats
	ReportVelocity() VelocityDicter
}

// Node is one entity (project, team or member) in a report tree. A node owns
// its children; the parent link is a back reference set only by AddChild.
type Node struct {
	Report Reportable
	// EntityID may differ from the report's when the report is a placeholder.
	EntityID string

	parent   *Node
	children []*Node
}

// NewNode creates a leaf node.
func NewNode(report Reportable, entityID string) *Node {
	return &Node{Report: report, EntityID: entityID}
}

// Parent returns the node's parent, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's children in insertion order.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// AddChild attaches child under n. Either both the back link and the
// append happen or, on error, neither does.
func (n *Node) AddChild(child *Node) error {
	if child == nil {
		return ErrNilNode
	}
	if child.parent != nil {
		return fmt.Errorf("%w: %q", ErrAlreadyParented, child.EntityID)
	}
	for a := n; a != nil; a = a.parent {
		if a == child {
			return fmt.Errorf("%w: %q under %q", ErrCycle, child.EntityID, n.EntityID)
		}
	}
	child.parent = n
	n.children = append(n.children, child)
	return nil
}

// AllNodes returns n and every descendant exactly once, in breadth-first order.
func (n *Node) AllNodes() []*Node {
	nodes := []*Node{n}
	for i := 0; i < len(nodes); i++ {
		nodes = append(nodes, nodes[i].children...)
	}
	return nodes
}

// AllReports returns the report of every node in AllNodes order.
func (n *Node) AllReports() []Reportable {
	nodes := n.AllNodes()
	reports := make([]Reportable, 0, len(nodes))
	for _, node := range nodes {
		reports = append(reports, node.Report)
	}
	return reports
}

// Depth returns the number of ancestors of n.
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// ToDict serializes the subtree rooted at n, logging to slog.Default.
func (n *Node) ToDict() (map[string]any, error) {
	return n.ToDictWithLogger(slog.Default())
}

// ToDictWithLogger serializes the subtree rooted at n.
//
// A node whose own report is not a *BasicReport with due-date stats returns an
// *InvariantError. A velocity report that fails to serialize becomes an empty
// map, and a child subtree that fails to serialize is left out; both are
// logged as warnings.
func (n *Node) ToDictWithLogger(logger *slog.Logger) (map[string]any, error) {
	if logger == nil {
		logger = slog.Default()
	}

	br, ok := n.Report.(*BasicReport)
	if !ok || br == nil {
		return nil, &InvariantError{
			EntityID: n.EntityID,
			Reason:   fmt.Sprintf("report is %T, want *report.BasicReport", n.Report),
		}
	}
	if br.DueDatesStats == nil {
		return nil, &InvariantError{EntityID: n.EntityID, Reason: "due dates stats are missing"}
	}

	entityID := n.EntityID
	if entityID == "" {
		entityID = br.EntityID
	}

	velocity, err := velocityDict(br)
	if err != nil {
		logger.Warn("velocity report could not be serialized",
			"project", br.Project,
			"entity_id", entityID,
			"error", err)
		velocity = map[string]any{}
	}

	children := make([]any, 0, len(n.children))
	for _, child := range n.children {
		d, err := childDict(child, logger)
		if err != nil {
			logger.Warn("omitting child report",
				"project", br.Project,
				"parent_entity_id", entityID,
				"child_entity_id", child.EntityID,
				"error", err)
			continue
		}
		children = append(children, d)
	}

	avatars := make(map[string]any, len(br.EntityAvatarURLs))
	for k, v := range br.EntityAvatarURLs {
		avatars[k] = v
	}

	return map[string]any{
		"project":           br.Project,
		"projectOnTrack":    br.ProjectOnTrack.Ordinal(),
		"entityId":          entityID,
		"entityDisplayName": br.EntityDisplayName,
		"entityAvatarUrls":  avatars,
		"dueDatesStats":     br.DueDatesStats.ToDict(),
		"sprintStats":       br.SprintStats.ToDict(),
		"velocityReport":    velocity,
		"params":            copyAny(br.Params),
		"paramsStr":         br.ParamsStr,
		"tmsName":           br.TMSName,
		"html":              br.HTML(),
		"children":          children,
	}, nil
}

func velocityDict(br *BasicReport) (d map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d, err = nil, fmt.Errorf("%w: panic: %v", ErrInvalidVelocityReport, rec)
		}
	}()
	v := br.ReportVelocity()
	if v == nil {
		return nil, fmt.Errorf("%w: missing", ErrInvalidVelocityReport)
	}
	return v.ToDict()
}

func childDict(child *Node, logger *slog.Logger) (d map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d, err = nil, fmt.Errorf("panic serializing %q: %v", child.EntityID, rec)
		}
	}()
	return child.ToDictWithLogger(logger)
}
