package behavior

import "math"

// trailFactors are the independent observations the missing-trail score
// is composed from. Keeping them as a struct makes the weight table
// inspectable and unit-testable instead of inline arithmetic.
type trailFactors struct {
	shortWindowSamples int // activity in the 1s window
	midWindowSamples   int // activity in the 3s window
	longWindowSamples  int // activity in the 5s window
	jumpPx             float64
	sinceLastMoveMS    int64
	hasLastPointer     bool
}

// trailScore composes a confidence from additive weighted factors and
// returns the labels of the factors that contributed. The sum is clamped
// to [0,1].
func trailScore(f trailFactors, cfg MissingTrailConfig) (float64, []string) {
	score := 0.0
	var applied []string

	switch {
	case f.longWindowSamples == 0:
		score += 0.7
		applied = append(applied, "no_activity_5s")
	case f.midWindowSamples < cfg.MidWindowMinSamples && f.jumpPx > 50:
		score += 0.4
		applied = append(applied, "low_activity_3s_with_jump")
	case f.shortWindowSamples == 0 && f.jumpPx > 100:
		score += 0.3
		applied = append(applied, "no_activity_1s_with_jump")
	}

	if f.hasLastPointer && f.sinceLastMoveMS > cfg.StaleMoveMS && f.jumpPx > 100 {
		score += 0.2
		applied = append(applied, "stale_pointer_with_jump")
	}

	if f.jumpPx > 300 {
		score += 0.3
		applied = append(applied, "jump_over_300")
	} else if f.jumpPx > 200 {
		score += 0.2
		applied = append(applied, "jump_over_200")
	}

	// Precision without approach: the cursor lands accurately on a
	// target it never travelled toward.
	if f.shortWindowSamples == 0 && f.jumpPx > 50 {
		score += 0.1
		applied = append(applied, "precision_without_approach")
	}

	return clamp01(score), applied
}

// detectMissingTrail flags clicks whose cursor position cannot be
// explained by preceding pointer activity. It is deliberately the most
// conservative detector: it stays silent during the warm-up period and
// until enough clicks have been seen, and every contributing factor is
// recorded in the detail for post-hoc audit.
func detectMissingTrail(h *History, cfg Config, nowMS int64) (Detection, bool) {
	mt := cfg.MissingTrail
	if nowMS-h.StartedAt() < mt.WarmupMS {
		return Detection{}, false
	}
	if h.ClickCount() < mt.MinClicks {
		return Detection{}, false
	}
	c, ok := h.clicks.last()
	if !ok {
		return Detection{}, false
	}

	f := trailFactors{
		// Exclude the instant of the click itself so a synthetic move
		// injected alongside the click does not count as approach.
		shortWindowSamples: countBetween(h, c.TS-mt.ShortWindowMS, c.TS-1),
		midWindowSamples:   countBetween(h, c.TS-mt.MidWindowMS, c.TS-1),
		longWindowSamples:  countBetween(h, c.TS-mt.LongWindowMS, c.TS-1),
	}
	if last, ok := h.LastPointer(); ok {
		f.hasLastPointer = true
		f.jumpPx = math.Hypot(c.X-last.X, c.Y-last.Y)
		f.sinceLastMoveMS = c.TS - last.TS
	} else {
		// No pointer ever seen: the jump is the full distance from
		// nowhere, treat as large.
		f.jumpPx = math.Hypot(c.X, c.Y)
	}

	confidence, factors := trailScore(f, mt)
	if confidence < mt.ConfidenceThreshold {
		return Detection{}, false
	}

	return Detection{
		Indicator:  IndicatorMissingTrails,
		Confidence: confidence,
		Detail: map[string]any{
			"factors":            factors,
			"jump_px":            f.jumpPx,
			"since_last_move_ms": f.sinceLastMoveMS,
			"activity_1s":        f.shortWindowSamples,
			"activity_3s":        f.midWindowSamples,
			"activity_5s":        f.longWindowSamples,
		},
	}, true
}

func countBetween(h *History, from, to int64) int {
	n := 0
	for _, s := range h.pointers.buf {
		if s.TS >= from && s.TS <= to {
			n++
		}
	}
	return n
}
