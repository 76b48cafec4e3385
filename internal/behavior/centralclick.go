package behavior

import (
	"math"
	"strings"
)

// Tag names that are always treated as clickable.
var clickableTags = map[string]bool{
	"button":   true,
	"input":    true,
	"select":   true,
	"option":   true,
	"a":        true,
	"label":    true,
	"summary":  true,
	"textarea": true,
}

// Lexical hints in ids/classes that suggest a click target.
var clickablePatterns = []string{
	"btn", "button", "submit", "link", "nav", "menu", "toggle",
	"clickable", "action", "cta",
}

// isClickableTarget layers several heuristics: the collector's explicit
// flag wins, then the tag allow-list, then attribute/role hints, then a
// lexical match on id/class, and finally a leading tag name parsed out
// of the selector string.
func isClickableTarget(c ClickEvent) bool {
	if c.Element.IsClickable != nil {
		return *c.Element.IsClickable
	}
	if clickableTags[strings.ToLower(c.Element.Tag)] {
		return true
	}
	if c.Element.HasOnClick || c.Element.HasHref || c.Element.HasTabIndex {
		return true
	}
	if strings.EqualFold(c.Element.Role, "button") || strings.EqualFold(c.Element.Role, "link") {
		return true
	}
	idClass := strings.ToLower(c.Element.ID + " " + c.Element.Class)
	for _, p := range clickablePatterns {
		if strings.Contains(idClass, p) {
			return true
		}
	}
	if tag := leadingTag(c.TargetSelector); clickableTags[tag] {
		return true
	}
	return false
}

// leadingTag extracts a leading tag name from a selector like
// "button#start" or "a.nav-link > span".
func leadingTag(selector string) string {
	s := strings.TrimSpace(strings.ToLower(selector))
	end := len(s)
	for i, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			end = i
			break
		}
	}
	return s[:end]
}

// centerDistance is the Euclidean distance from the click point to the
// element's geometric center, computed in element-local coordinates.
func centerDistance(c ClickEvent) (float64, bool) {
	if c.Bounds.Width <= 0 || c.Bounds.Height <= 0 {
		return 0, false
	}
	return math.Hypot(c.Offset.X-c.Bounds.Width/2, c.Offset.Y-c.Bounds.Height/2), true
}

// detectCentralClicks flags clicks that land suspiciously close to the
// geometric center of clickable elements. A single central click is
// weak evidence; confidence comes from how many of the recent clicks
// show the same pattern.
func detectCentralClicks(h *History, cfg Config, _ int64) (Detection, bool) {
	c, ok := h.clicks.last()
	if !ok || !isClickableTarget(c) {
		return Detection{}, false
	}
	dist, ok := centerDistance(c)
	if !ok || dist > cfg.CentralClick.CenterThresholdPx {
		return Detection{}, false
	}

	// Pattern strength: how many of the recent clicks were also central
	// on a clickable element (the current click included).
	matching := 0
	for _, prev := range h.RecentClicks(cfg.CentralClick.PatternWindow) {
		if !isClickableTarget(prev) {
			continue
		}
		if d, ok := centerDistance(prev); ok && d <= cfg.CentralClick.CenterThresholdPx {
			matching++
		}
	}

	confidence := clamp01(float64(matching) / float64(cfg.CentralClick.MinSamples))
	if confidence < cfg.CentralClick.ConfidenceThreshold {
		return Detection{}, false
	}

	return Detection{
		Indicator:  IndicatorCentralClicks,
		Confidence: confidence,
		Detail: map[string]any{
			"element_tag":      c.Element.Tag,
			"element_id":       c.Element.ID,
			"distance_px":      dist,
			"element_width":    c.Bounds.Width,
			"element_height":   c.Bounds.Height,
			"pattern_strength": matching,
		},
	}, true
}
