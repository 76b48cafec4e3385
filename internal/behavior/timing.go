package behavior

// detectArtificialTiming looks for metronome clicking. Human inter-click
// intervals carry natural jitter; automation produces either near-perfect
// regularity or a raw variance below anything a person manages.
func detectArtificialTiming(h *History, cfg Config, _ int64) (Detection, bool) {
	times := h.ClickTimes()
	if len(times) < cfg.Timing.MinSamples {
		return Detection{}, false
	}
	if len(times) > cfg.Timing.Window {
		times = times[len(times)-cfg.Timing.Window:]
	}

	gaps := intervals(times)
	reg := regularity(gaps)
	v := variance(gaps)
	lowVariance := v < cfg.Timing.HumanVarianceMinMS2

	if reg <= cfg.Timing.RegularityThreshold && !lowVariance {
		return Detection{}, false
	}

	confidence := reg
	if lowVariance {
		confidence += cfg.Timing.LowVarianceBonus
	}
	confidence = clamp01(confidence)
	if confidence < cfg.Timing.ConfidenceThreshold {
		return Detection{}, false
	}

	return Detection{
		Indicator:  IndicatorTiming,
		Confidence: confidence,
		Detail: map[string]any{
			"regularity":       reg,
			"variance_ms2":     v,
			"mean_interval_ms": mean(gaps),
			"sample_count":     len(times),
		},
	}, true
}
