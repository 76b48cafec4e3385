// Package ingest analyzes the HTTP requests carrying interaction events.
// Its signals are transport-level context (headers, user agent, request
// cadence) attached to session results alongside the behavioral
// indicators; they carry no confidence scoring of their own.
package ingest

// Signals is the raw request-level context captured at ingest time.
type Signals struct {
	HeaderFingerprint string         `json:"header_fingerprint,omitempty"`
	Headers           HeaderSignals  `json:"headers"`
	UserAgent         UASignals      `json:"user_agent"`
	Timing            TimingSignals  `json:"timing"`
	PayloadEntropy    float64        `json:"payload_entropy,omitempty"`
	PayloadSize       int            `json:"payload_size"`
}

// HeaderSignals captures automation hints visible in the header set.
type HeaderSignals struct {
	MissingExpected   []string `json:"missing_expected,omitempty"`
	AutomationHeaders []string `json:"automation_headers,omitempty"`
	HeaderCount       int      `json:"header_count"`
}

// UASignals captures user-agent automation hints.
type UASignals struct {
	Length             int      `json:"length"`
	ContainsAutomation bool     `json:"contains_automation"`
	AutomationKeywords []string `json:"automation_keywords,omitempty"`
}

// TimingSignals captures the cadence of ingest requests per client.
type TimingSignals struct {
	IntervalMS        float64 `json:"interval_ms,omitempty"`
	IntervalPrecision int     `json:"interval_precision,omitempty"` // largest round divisor of the interval
	HasPrevious       bool    `json:"has_previous"`
}
