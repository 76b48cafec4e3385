package behavior

// Telemetry is purely descriptive interaction statistics. It carries no
// anomaly judgment and is intended for audit and debugging, not
// detection. All fields except the duration-derived rates are stable
// between calls when no new events arrive.
type Telemetry struct {
	TotalMoves   int `json:"total_moves"`
	TotalClicks  int `json:"total_clicks"`
	TotalScrolls int `json:"total_scrolls"`

	TotalDistancePx float64 `json:"total_distance_px"`
	AvgVelocity     float64 `json:"avg_velocity_px_s"`
	MaxVelocity     float64 `json:"max_velocity_px_s"`

	DurationMS       int64   `json:"duration_ms"`
	MovesPerSecond   float64 `json:"moves_per_second"`
	ClicksPerSecond  float64 `json:"clicks_per_second"`
	ScrollsPerSecond float64 `json:"scrolls_per_second"`

	HasPointerActivity bool `json:"has_pointer_activity"`
	HasClickActivity   bool `json:"has_click_activity"`
	HasScrollActivity  bool `json:"has_scroll_activity"`
}

// computeTelemetry derives the descriptive stats from the history store.
func computeTelemetry(h *History, nowMS int64) Telemetry {
	t := Telemetry{
		TotalMoves:         h.moveCount,
		TotalClicks:        h.clickCount,
		TotalScrolls:       h.scrollCount,
		TotalDistancePx:    h.totalDistance,
		MaxVelocity:        h.maxVelocity,
		HasPointerActivity: h.moveCount > 0,
		HasClickActivity:   h.clickCount > 0,
		HasScrollActivity:  h.scrollCount > 0,
	}
	// Average over derived movements; n moves produce n-1 deltas.
	if h.moveCount > 1 {
		t.AvgVelocity = h.velocitySum / float64(h.moveCount-1)
	}
	t.DurationMS = nowMS - h.startedAt
	if t.DurationMS > 0 {
		secs := float64(t.DurationMS) / 1000.0
		t.MovesPerSecond = float64(h.moveCount) / secs
		t.ClicksPerSecond = float64(h.clickCount) / secs
		t.ScrollsPerSecond = float64(h.scrollCount) / secs
	}
	return t
}
