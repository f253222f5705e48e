// Package report holds the per-entity status report types and the report tree
// that rolls them up into project and organization reports.
package report

// AlertStatus classifies how on-track a task or entity is relative to its target date.
type AlertStatus int

const (
	OnTrack AlertStatus = iota
	AtRisk
	OffTrack
	Overdue
	Unknown
)

// AllStatuses lists every AlertStatus in display order.
var AllStatuses = []AlertStatus{OnTrack, AtRisk, OffTrack, Overdue, Unknown}

var statusNames = map[AlertStatus]string{
	OnTrack:  "on_track",
	AtRisk:   "at_risk",
	OffTrack: "off_track",
	Overdue:  "overdue",
	Unknown:  "unknown",
}

// Persisted reports use this ordinal; it predates Overdue, hence the gap.
var statusOrdinals = map[AlertStatus]int{
	OnTrack:  0,
	AtRisk:   1,
	OffTrack: 2,
	Unknown:  3,
	Overdue:  4,
}

var statusLabels = map[AlertStatus]string{
	OnTrack:  "On track",
	AtRisk:   "At risk",
	OffTrack: "Off track",
	Overdue:  "Overdue",
	Unknown:  "Unknown",
}

// Valid reports whether s is one of the five defined statuses.
func (s AlertStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s AlertStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[Unknown]
}

// Label returns the human-readable status name used in rendered reports.
func (s AlertStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return statusLabels[Unknown]
}

// Ordinal returns the persisted integer form of the status.
func (s AlertStatus) Ordinal() int {
	if n, ok := statusOrdinals[s]; ok {
		return n
	}
	return statusOrdinals[Unknown]
}

// FromOrdinal maps a persisted ordinal back to its status.
func FromOrdinal(n int) (AlertStatus, bool) {
	for s, ord := range statusOrdinals {
		if ord == n {
			return s, true
		}
	}
	return Unknown, false
}

// ParseAlertStatus matches a status name exactly.
func ParseAlertStatus(name string) (AlertStatus, bool) {
	for s, n := range statusNames {
		if n == name {
			return s, true
		}
	}
	return Unknown, false
}

// Severity orders statuses from best to worst for roll-ups.
// Unknown ranks below OnTrack so that any known status wins.
func (s AlertStatus) Severity() int {
	switch s {
	case OnTrack:
		return 1
	case AtRisk:
		return 2
	case OffTrack:
		return 3
	case Overdue:
		return 4
	default:
		return 0
	}
}
