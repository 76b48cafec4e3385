package behavior

import "math"

// detectNonHumanScroll analyzes the recent wheel events for machine-like
// uniformity. Two independent regularity measures are taken (inter-event
// timing and |deltaY| magnitude) plus a "perfect values" check for
// deltas that are exact multiples of the step (programmatic scrolls love
// round numbers).
func detectNonHumanScroll(h *History, cfg Config, _ int64) (Detection, bool) {
	if h.ScrollCount() < cfg.Scroll.MinSamples {
		return Detection{}, false
	}
	recent := h.RecentScrolls(cfg.Scroll.Window)

	ts := make([]int64, len(recent))
	velocities := make([]float64, len(recent))
	perfect := false
	for i, s := range recent {
		ts[i] = s.TS
		velocities[i] = math.Abs(s.DeltaY)
		if s.DeltaY != 0 && math.Mod(math.Abs(s.DeltaY), cfg.Scroll.PerfectValueStep) == 0 {
			perfect = true
		}
	}

	timingReg := regularity(intervals(ts))
	velocityReg := regularity(velocities)

	if timingReg <= cfg.Scroll.TimingRegularityThreshold &&
		velocityReg <= cfg.Scroll.VelocityVarianceThreshold {
		return Detection{}, false
	}

	confidence := (timingReg + velocityReg) / 2
	if perfect {
		confidence += cfg.Scroll.PerfectValueBonus
	}
	confidence = clamp01(confidence)
	if confidence < cfg.Scroll.ConfidenceThreshold {
		return Detection{}, false
	}

	return Detection{
		Indicator:  IndicatorScroll,
		Confidence: confidence,
		Detail: map[string]any{
			"timing_regularity":   timingReg,
			"velocity_regularity": velocityReg,
			"perfect_values":      perfect,
			"sample_count":        len(recent),
		},
	}, true
}
