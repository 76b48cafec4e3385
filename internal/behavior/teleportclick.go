package behavior

import "math"

// Scenario labels for the teleport-click decision ladder.
const (
	ScenarioCometSingleMove = "comet_single_move"
	ScenarioNoMovement      = "no_movement"
	ScenarioMinimalMovement = "minimal_movement"
)

// detectNoMovementClick fires when a click arrives with no plausible
// pointer approach in the preceding lookback window. The ladder is
// evaluated in priority order with early return:
//
//  1. exactly one sample: a single synthetic pointer-move immediately
//     before a click is a strong signature of certain browser-automation
//     agents (0.95)
//  2. zero samples (0.90)
//  3. two or three samples covering almost no distance (0.75)
func detectNoMovementClick(h *History, cfg Config, _ int64) (Detection, bool) {
	c, ok := h.clicks.last()
	if !ok {
		return Detection{}, false
	}

	// The click that begins tracking has no trail by construction;
	// don't penalize it.
	if h.ClickCount() == 1 && c.TargetSelector == cfg.NoMovement.StartTargetSelector {
		return Detection{}, false
	}

	window := cfg.NoMovement.TimeThresholdMS
	trail := h.PointersBetween(c.TS-window, c.TS)

	var scenario string
	var confidence float64
	switch n := len(trail); {
	case n == 1:
		scenario, confidence = ScenarioCometSingleMove, 0.95
	case n == 0:
		scenario, confidence = ScenarioNoMovement, 0.90
	case n <= 3 && pathLength(trail) <= cfg.NoMovement.MinimalPathPx:
		scenario, confidence = ScenarioMinimalMovement, 0.75
	default:
		return Detection{}, false
	}

	return Detection{
		Indicator:  IndicatorNoMovement,
		Confidence: confidence,
		Scenario:   scenario,
		Detail: map[string]any{
			"scenario":     scenario,
			"trail_length": len(trail),
			"window_ms":    window,
		},
	}, true
}

// pathLength is the cumulative point-to-point distance of a trail.
func pathLength(trail []PointerSample) float64 {
	total := 0.0
	for i := 1; i < len(trail); i++ {
		total += math.Hypot(trail[i].X-trail[i-1].X, trail[i].Y-trail[i-1].Y)
	}
	return total
}
