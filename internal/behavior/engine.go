package behavior

import (
	"log"
	"time"
)

// IndicatorUpdate is the normalized tuple the engine proposes to the
// indicator store. The engine never reads counts or thresholds back.
type IndicatorUpdate struct {
	Increment  bool
	Confidence float64
	Detail     map[string]any
}

// Emitter is the consumed indicator-store collaborator. Implementations
// must tolerate any input; if one panics anyway the engine swallows it.
type Emitter interface {
	UpdateIndicator(name string, u IndicatorUpdate)
}

// Engine ingests raw interaction events, maintains the bounded sample
// history, and runs the detector registries synchronously per event.
//
// The engine is not safe for concurrent use. Ownership is exclusive to
// the single session controller that created it, which serializes all
// event handling, like a single-threaded event loop.
type Engine struct {
	hist    *History
	cfg     Config
	emitter Emitter
	now     func() int64 // unix ms, injectable for tests

	onClick  []Descriptor
	onScroll []Descriptor

	failures func(detector string)  // optional hook for metrics
	emitted  func(indicator string) // optional hook, fires after a stored emission
}

// Option customizes engine construction.
type Option func(*Engine)

// WithClock overrides the engine's millisecond clock.
func WithClock(now func() int64) Option {
	return func(e *Engine) { e.now = now }
}

// WithFailureHook installs a callback invoked once per detector failure.
func WithFailureHook(fn func(detector string)) Option {
	return func(e *Engine) { e.failures = fn }
}

// WithEmitHook installs a callback invoked once per detection that
// reached the indicator store.
func WithEmitHook(fn func(indicator string)) Option {
	return func(e *Engine) { e.emitted = fn }
}

// NewEngine builds an engine with the explicit ordered detector
// registries. emitter may be nil (detections are then dropped).
func NewEngine(cfg Config, emitter Emitter, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		emitter:  emitter,
		now:      func() int64 { return time.Now().UnixMilli() },
		onClick:  clickDetectors(),
		onScroll: scrollDetectors(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.hist = NewHistory(e.now())
	return e
}

// Reset clears the sample history and re-anchors the warm-up window.
func (e *Engine) Reset() { e.hist.Reset(e.now()) }

// History exposes the sample store for telemetry computation. Read-only
// by convention; callers must not mutate it.
func (e *Engine) History() *History { return e.hist }

// Telemetry computes the descriptive stats as of now.
func (e *Engine) Telemetry() Telemetry { return computeTelemetry(e.hist, e.now()) }

// HandlePointerMove records a pointer sample. No detectors run on moves;
// they must stay cheap enough to run on every pointermove without lag.
func (e *Engine) HandlePointerMove(s PointerSample) {
	if s.TS == 0 {
		s.TS = e.now()
	}
	e.hist.RecordPointer(s)
}

// HandleClick records the click and runs the click registry in order.
func (e *Engine) HandleClick(c ClickEvent) {
	if c.TS == 0 {
		c.TS = e.now()
	}
	e.hist.RecordClick(c)
	e.dispatch(e.onClick)
}

// HandleScroll records the wheel sample and runs the scroll registry.
func (e *Engine) HandleScroll(s ScrollSample) {
	if s.TS == 0 {
		s.TS = e.now()
	}
	e.hist.RecordScroll(s)
	e.dispatch(e.onScroll)
}

// dispatch runs each detector with the never-throw contract: a failure
// in one detector is logged and treated as "no detection", and the rest
// of the registry still runs.
func (e *Engine) dispatch(registry []Descriptor) {
	nowMS := e.now()
	for _, d := range registry {
		det, hit, err := e.runOne(d, nowMS)
		if err != nil {
			log.Printf("engine: %v", err)
			if e.failures != nil {
				e.failures(d.ID)
			}
			continue
		}
		if hit {
			e.emit(det)
		}
	}
}

// runOne executes a single detector, converting panics into a
// DetectionError and clamping the confidence.
func (e *Engine) runOne(d Descriptor, nowMS int64) (det Detection, hit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			det, hit = Detection{}, false
			err = &DetectionError{Detector: d.ID, Cause: r}
		}
	}()
	det, hit = d.Run(e.hist, e.cfg, nowMS)
	det.Confidence = clamp01(det.Confidence)
	return det, hit, nil
}

// emit forwards a detection to the indicator store. Collaborator
// failures are swallowed; detection continues.
func (e *Engine) emit(det Detection) {
	if e.emitter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("engine: indicator store failed for %s: %v", det.Indicator, r)
		}
	}()
	e.emitter.UpdateIndicator(det.Indicator, IndicatorUpdate{
		Increment:  true,
		Confidence: det.Confidence,
		Detail:     det.Detail,
	})
	if e.emitted != nil {
		e.emitted(det.Indicator)
	}
}
