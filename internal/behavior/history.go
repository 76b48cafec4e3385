package behavior

import "math"

// Ring buffer capacities. Every history buffer is strictly bounded;
// the oldest entry is evicted first.
const (
	pointerCap  = 100
	movementCap = 50
	clickCap    = 50
	scrollCap   = 100
	timingCap   = 20
)

// PointerSample is one pointer-move observation.
type PointerSample struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	TS int64   `json:"ts"` // unix milliseconds
}

// PointerMovement is the delta between two consecutive pointer samples.
type PointerMovement struct {
	Distance float64 `json:"distance"`
	DeltaMS  int64   `json:"delta_ms"`
	Velocity float64 `json:"velocity"` // px per second
	TS       int64   `json:"ts"`
}

// ElementInfo describes the click target as reported by the collector.
type ElementInfo struct {
	Tag         string `json:"tag,omitempty"`
	ID          string `json:"id,omitempty"`
	Class       string `json:"class,omitempty"`
	Role        string `json:"role,omitempty"`
	HasOnClick  bool   `json:"has_onclick,omitempty"`
	HasHref     bool   `json:"has_href,omitempty"`
	HasTabIndex bool   `json:"has_tabindex,omitempty"`
	IsClickable *bool  `json:"is_clickable,omitempty"`
}

// ElementBounds is the rendered size of the click target.
type ElementBounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ClickEvent is one click observation with its surrounding context.
type ClickEvent struct {
	TS             int64           `json:"ts"`
	X              float64         `json:"x"`
	Y              float64         `json:"y"`
	TargetSelector string          `json:"target_selector,omitempty"`
	Element        ElementInfo     `json:"element,omitempty"`
	Bounds         ElementBounds   `json:"bounds,omitempty"`
	Offset         Offset          `json:"offset,omitempty"` // click position within the element
	Trusted        bool            `json:"trusted"`
	Trail          []PointerSample `json:"trail,omitempty"` // pointer samples from the 200ms before the click
}

// Offset is a position relative to the element's top-left corner.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ScrollSample is one wheel observation. Velocity is |DeltaY|.
type ScrollSample struct {
	TS        int64   `json:"ts"`
	DeltaX    float64 `json:"delta_x"`
	DeltaY    float64 `json:"delta_y"`
	ScrollTop float64 `json:"scroll_top"`
	Velocity  float64 `json:"velocity"`
}

// ring is a bounded FIFO buffer. Not safe for concurrent use; the
// owning engine serializes all access.
type ring[T any] struct {
	buf []T
	max int
}

func newRing[T any](max int) *ring[T] {
	return &ring[T]{buf: make([]T, 0, max), max: max}
}

func (r *ring[T]) push(v T) {
	if len(r.buf) == r.max {
		copy(r.buf, r.buf[1:])
		r.buf[len(r.buf)-1] = v
		return
	}
	r.buf = append(r.buf, v)
}

func (r *ring[T]) len() int { return len(r.buf) }

func (r *ring[T]) last() (T, bool) {
	var zero T
	if len(r.buf) == 0 {
		return zero, false
	}
	return r.buf[len(r.buf)-1], true
}

// tail returns up to n most recent entries, oldest first. The returned
// slice aliases the buffer and must not be retained across pushes.
func (r *ring[T]) tail(n int) []T {
	if n >= len(r.buf) {
		return r.buf
	}
	return r.buf[len(r.buf)-n:]
}

func (r *ring[T]) clear() { r.buf = r.buf[:0] }

// History is the per-session sample store the detectors read from.
// Detectors never mutate it; all writes go through the Record methods.
type History struct {
	pointers   *ring[PointerSample]
	movements  *ring[PointerMovement]
	clicks     *ring[ClickEvent]
	scrolls    *ring[ScrollSample]
	clickTimes *ring[int64]

	startedAt int64 // tracking start, unix ms

	// Unbounded counters for telemetry. The rings cap what detectors
	// see; totals keep counting.
	moveCount     int
	clickCount    int
	scrollCount   int
	totalDistance float64
	maxVelocity   float64
	velocitySum   float64
}

// NewHistory creates an empty history anchored at nowMS. The anchor is
// the warm-up reference for cold-start suppression.
func NewHistory(nowMS int64) *History {
	h := &History{}
	h.init(nowMS)
	return h
}

func (h *History) init(nowMS int64) {
	h.pointers = newRing[PointerSample](pointerCap)
	h.movements = newRing[PointerMovement](movementCap)
	h.clicks = newRing[ClickEvent](clickCap)
	h.scrolls = newRing[ScrollSample](scrollCap)
	h.clickTimes = newRing[int64](timingCap)
	h.startedAt = nowMS
	h.moveCount = 0
	h.clickCount = 0
	h.scrollCount = 0
	h.totalDistance = 0
	h.maxVelocity = 0
	h.velocitySum = 0
}

// Reset clears all buffers and counters and re-anchors the warm-up window.
func (h *History) Reset(nowMS int64) { h.init(nowMS) }

// RecordPointer appends a pointer sample and derives the movement delta
// from the previous sample.
func (h *History) RecordPointer(s PointerSample) {
	if prev, ok := h.pointers.last(); ok {
		dist := math.Hypot(s.X-prev.X, s.Y-prev.Y)
		dt := s.TS - prev.TS
		mv := PointerMovement{Distance: dist, DeltaMS: dt, TS: s.TS}
		if dt > 0 {
			mv.Velocity = dist / (float64(dt) / 1000.0)
		}
		h.movements.push(mv)
		h.totalDistance += dist
		h.velocitySum += mv.Velocity
		if mv.Velocity > h.maxVelocity {
			h.maxVelocity = mv.Velocity
		}
	}
	h.pointers.push(s)
	h.moveCount++
}

// RecordClick appends a click and its timestamp to the timing sequence.
func (h *History) RecordClick(c ClickEvent) {
	h.clicks.push(c)
	h.clickTimes.push(c.TS)
	h.clickCount++
}

// RecordScroll appends a wheel sample, filling Velocity if the collector
// left it zero.
func (h *History) RecordScroll(s ScrollSample) {
	if s.Velocity == 0 {
		s.Velocity = math.Abs(s.DeltaY)
	}
	h.scrolls.push(s)
	h.scrollCount++
}

// StartedAt returns the tracking anchor in unix ms.
func (h *History) StartedAt() int64 { return h.startedAt }

// ClickCount returns the total number of clicks observed this session.
func (h *History) ClickCount() int { return h.clickCount }

// LastPointer returns the most recent pointer sample.
func (h *History) LastPointer() (PointerSample, bool) { return h.pointers.last() }

// PointersBetween returns pointer samples with from <= TS <= to, oldest first.
func (h *History) PointersBetween(from, to int64) []PointerSample {
	var out []PointerSample
	for _, s := range h.pointers.buf {
		if s.TS >= from && s.TS <= to {
			out = append(out, s)
		}
	}
	return out
}

// PointerCountSince counts pointer samples at or after ts.
func (h *History) PointerCountSince(ts int64) int {
	n := 0
	for _, s := range h.pointers.buf {
		if s.TS >= ts {
			n++
		}
	}
	return n
}

// RecentClicks returns up to n most recent clicks, oldest first.
func (h *History) RecentClicks(n int) []ClickEvent { return h.clicks.tail(n) }

// RecentScrolls returns up to n most recent scrolls, oldest first.
func (h *History) RecentScrolls(n int) []ScrollSample { return h.scrolls.tail(n) }

// ScrollCount returns the number of buffered scroll samples.
func (h *History) ScrollCount() int { return h.scrolls.len() }

// ClickTimes returns the buffered click-timing sequence, oldest first.
func (h *History) ClickTimes() []int64 { return h.clickTimes.buf }
