// Package session orchestrates bounded-duration capture windows: it
// wires incoming interaction events into a behavioral engine, and at
// session end assembles indicators plus descriptive telemetry into one
// result object.
package session

import (
	"time"

	"github.com/botsense/botsense/internal/behavior"
	"github.com/botsense/botsense/internal/indicator"
	"github.com/botsense/botsense/internal/ingest"
)

// Result is the single externally meaningful output of a capture
// session. It is always well-formed: on any internal failure the fields
// degrade to documented defaults rather than being absent.
type Result struct {
	SessionID            string                         `json:"session_id"`
	Indicators           map[string]indicator.Indicator `json:"indicators"`
	Summary              indicator.Summary              `json:"summary"`
	Telemetry            behavior.Telemetry             `json:"telemetry"`
	CollectionDurationMS int64                          `json:"collection_duration_ms"`
	Metadata             Metadata                       `json:"metadata"`
}

// Metadata carries audit context for a result.
type Metadata struct {
	StartedAt   time.Time       `json:"started_at,omitempty"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
	Partial     bool            `json:"partial,omitempty"` // snapshot taken mid-collection
	Error       string          `json:"error,omitempty"`   // preserved construction/assembly failure
	Ingest      *ingest.Signals `json:"ingest,omitempty"`  // request-level context, if captured
}

// degradedResult is the documented fail-open default: empty indicators,
// zeroed telemetry, UNKNOWN risk, error preserved in metadata.
func degradedResult(id string, err error) Result {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Result{
		SessionID:  id,
		Indicators: map[string]indicator.Indicator{},
		Summary:    indicator.Summary{RiskLevel: indicator.RiskUnknown},
		Metadata:   Metadata{Error: msg},
	}
}
