// Package event defines the wire model for interaction events posted by
// the browser collector, plus server-side enrichment of incoming events.
package event

import "github.com/botsense/botsense/internal/behavior"

// Event kinds accepted on the ingest endpoints.
const (
	KindPointerMove = "pointermove"
	KindClick       = "click"
	KindWheel       = "wheel"
)

// Interaction is the envelope for one raw interaction event. Exactly one
// of Pointer, Click, Wheel is populated, matching Kind. Optional fields
// are omitted when empty.
type Interaction struct {
	EventID   string `json:"event_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	TS        int64  `json:"ts,omitempty"` // client clock, unix ms
	Kind      string `json:"kind,omitempty"`

	Pointer *behavior.PointerSample `json:"pointer,omitempty"`
	Click   *behavior.ClickEvent    `json:"click,omitempty"`
	Wheel   *behavior.ScrollSample  `json:"wheel,omitempty"`

	Server ServerMeta `json:"server,omitempty"`
}

// ServerMeta carries fields the server sets on ingest; clients cannot
// forge them.
type ServerMeta struct {
	ReceivedTS int64  `json:"received_ts,omitempty"` // server clock, unix ms
	UA         string `json:"ua,omitempty"`
	IPHash     string `json:"ip_hash,omitempty"`
}

// Valid reports whether the envelope is internally consistent enough to
// feed the engine.
func (e *Interaction) Valid() bool {
	switch e.Kind {
	case KindPointerMove:
		return e.Pointer != nil
	case KindClick:
		return e.Click != nil
	case KindWheel:
		return e.Wheel != nil
	}
	return false
}
