// Package domain holds the run audit trail shared by the estimation pipeline and its stores.
package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Audit actions recorded by an estimation run.
const (
	ActionRunStarted  = "run.started"
	ActionStage       = "run.stage"
	ActionRunFinished = "run.finished"
	ActionRunFailed   = "run.failed"
)

// ErrBrokenChain reports an audit log whose hashes do not link up.
var ErrBrokenChain = errors.New("audit chain broken")

// Event is one step of an estimation run, chained to the event logged before it.
type Event struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	PrevHash  string         `json:"prev_hash,omitempty"`
	Hash      string         `json:"hash,omitempty"`
}

// CalculateHash returns the SHA256 of the event fields and the previous hash.
func (e *Event) CalculateHash() string {
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write([]byte(e.ID))
	h.Write([]byte(e.RunID))
	h.Write([]byte(e.Timestamp.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte(e.Action))
	h.Write([]byte(e.Actor))
	h.Write([]byte(canonicalJSON(e.Metadata)))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON encodes metadata with sorted keys.
func canonicalJSON(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]byte, 0, 256)
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		keyJSON, _ := json.Marshal(k)
		valJSON, _ := json.Marshal(m[k])
		ordered = append(ordered, keyJSON...)
		ordered = append(ordered, ':')
		ordered = append(ordered, valJSON...)
	}
	ordered = append(ordered, '}')
	return string(ordered)
}

// VerifyChain checks that every event hashes to its stored hash and links to
// the one before it. The first event may link to anything so that a slice of
// a longer log still verifies.
func VerifyChain(events []Event) error {
	for i := range events {
		e := &events[i]
		if got := e.CalculateHash(); got != e.Hash {
			return fmt.Errorf("%w: event %s at %d has hash %s, want %s", ErrBrokenChain, e.ID, i, e.Hash, got)
		}
		if i > 0 && e.PrevHash != events[i-1].Hash {
			return fmt.Errorf("%w: event %s at %d does not follow %s", ErrBrokenChain, e.ID, i, events[i-1].ID)
		}
	}
	return nil
}

// AuditLogger records run events. Implementations fill in the ID, the
// timestamp and the chain hashes.
type AuditLogger interface {
	Log(ctx context.Context, runID, action string, metadata map[string]any) error
}

// AuditRepository reads the recorded events back.
type AuditRepository interface {
	AuditLogger
	// Events returns the events of one run in order, or every event when runID is empty.
	Events(ctx context.Context, runID string) ([]Event, error)
}
