package behavior

import "fmt"

// Indicator names emitted by the detectors.
const (
	IndicatorCentralClicks  = "centralButtonClicks"
	IndicatorNoMovement     = "clicksWithoutMouseMovement"
	IndicatorScroll         = "nonHumanScrolling"
	IndicatorTiming         = "artificialTiming"
	IndicatorMissingTrails  = "missingMouseTrails"
)

// Detection is one confidence-scored observation of an automation
// pattern. Confidence is always within [0,1] by the time it leaves a
// detector.
type Detection struct {
	Indicator  string         `json:"indicator"`
	Confidence float64        `json:"confidence"`
	Scenario   string         `json:"scenario,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// DetectorFunc is a pure function over the sample history. It reads,
// never writes; history mutation is the engine's job. The boolean is
// false when nothing suspicious was found for this event.
type DetectorFunc func(h *History, cfg Config, nowMS int64) (Detection, bool)

// Descriptor names a detector in the engine's ordered registry.
type Descriptor struct {
	ID  string
	Run DetectorFunc
}

// DetectionError records a detector failure. Failures never propagate:
// the engine logs them and treats the event as "no detection".
type DetectionError struct {
	Detector string
	Cause    any
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detector %s failed: %v", e.Detector, e.Cause)
}

// clickDetectors returns the ordered registry run on every click.
// Order is part of the contract: central-click, no-movement,
// artificial-timing, missing-trail.
func clickDetectors() []Descriptor {
	return []Descriptor{
		{ID: "central_click", Run: detectCentralClicks},
		{ID: "no_movement", Run: detectNoMovementClick},
		{ID: "artificial_timing", Run: detectArtificialTiming},
		{ID: "missing_trail", Run: detectMissingTrail},
	}
}

// scrollDetectors returns the ordered registry run on every wheel event.
func scrollDetectors() []Descriptor {
	return []Descriptor{
		{ID: "non_human_scroll", Run: detectNonHumanScroll},
	}
}
