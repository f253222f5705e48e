package report

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var statusAliases = map[string]AlertStatus{
	"on_track":  OnTrack,
	"ontrack":   OnTrack,
	"on_time":   OnTrack,
	"at_risk":   AtRisk,
	"atrisk":    AtRisk,
	"off_track": OffTrack,
	"offtrack":  OffTrack,
	"late":      OffTrack,
	"overdue":   Overdue,
	"past_due":  Overdue,
	"unknown":   Unknown,
	"none":      Unknown,
}

// Classifier maps raw due-date evaluations onto AlertStatus.
type Classifier struct {
	logger *slog.Logger
}

// NewClassifier creates a Classifier that reports unmatched inputs to logger.
func NewClassifier(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{logger: logger}
}

// Classify returns the AlertStatus for raw using the default logger.
func Classify(raw any) AlertStatus {
	return NewClassifier(nil).Classify(raw)
}

// Classify accepts an AlertStatus, a status name (including qualified forms
// such as "AlertStatus.on_track"), a persisted ordinal, a fmt.Stringer, or nil.
// Anything it cannot match is Unknown.
func (c *Classifier) Classify(raw any) AlertStatus {
	switch v := raw.(type) {
	case nil:
		c.logger.Debug("no status to classify")
		return Unknown
	case AlertStatus:
		if v.Valid() {
			return v
		}
		c.logger.Warn("unrecognized alert status value", "value", int(v))
		return Unknown
	case *AlertStatus:
		if v == nil {
			c.logger.Debug("no status to classify")
			return Unknown
		}
		return c.Classify(*v)
	case string:
		return c.classifyName(v)
	case int:
		if s, ok := FromOrdinal(v); ok {
			return s
		}
		c.logger.Warn("unrecognized alert status ordinal", "value", v)
		return Unknown
	case fmt.Stringer:
		return c.classifyName(v.String())
	default:
		c.logger.Warn("unsupported alert status type", "type", fmt.Sprintf("%T", raw))
		return Unknown
	}
}

func (c *Classifier) classifyName(raw string) AlertStatus {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		c.logger.Debug("empty status to classify")
		return Unknown
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	if s, ok := statusAliases[name]; ok {
		return s
	}
	c.logger.Warn("unrecognized alert status", "value", raw)
	return Unknown
}

// EvaluateDueDate derives the raw status of open work due at due and
// predicted to finish at eta. Work predicted to land within grace after the
// due date is at risk rather than off track.
func EvaluateDueDate(due, eta *time.Time, now time.Time, grace time.Duration) AlertStatus {
	if due == nil {
		return Unknown
	}
	if due.Before(now) {
		return Overdue
	}
	if eta == nil {
		return Unknown
	}
	switch {
	case !eta.After(*due):
		return OnTrack
	case !eta.After(due.Add(grace)):
		return AtRisk
	default:
		return OffTrack
	}
}
