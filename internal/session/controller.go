package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/botsense/botsense/internal/behavior"
	"github.com/botsense/botsense/internal/event"
	"github.com/botsense/botsense/internal/indicator"
	"github.com/botsense/botsense/internal/ingest"
)

// State of a capture session.
type State int

const (
	Idle State = iota
	Collecting
)

// pollInterval is the granularity of the duration-bounded wait. Each
// tick also drives the progress callback so a host can show a countdown.
const pollInterval = 100 * time.Millisecond

// Controller runs one capture session at a time. All event handling and
// state transitions are serialized through an internal mutex, so the
// engine behind it only ever sees one event at a time.
//
// Controller methods never return an error: any internal failure
// degrades to a documented default result. That is the central
// failure-handling contract of the subsystem.
type Controller struct {
	mu    sync.Mutex
	id    string
	state State

	engine *behavior.Engine
	store  indicator.Store

	clock      func() time.Time
	onProgress func(elapsed, total time.Duration)
	onEmit     func(indicator string)
	onFailure  func(detector string)

	startedAt  time.Time
	duration   time.Duration
	stopCh     chan struct{}
	lastResult *Result
	ingestSig  *ingest.Signals

	constructErr error
}

// ControllerOption customizes controller construction.
type ControllerOption func(*Controller)

// WithProgress installs a callback invoked on every polling tick while
// collecting.
func WithProgress(fn func(elapsed, total time.Duration)) ControllerOption {
	return func(c *Controller) { c.onProgress = fn }
}

// WithControllerClock overrides the controller's clock.
func WithControllerClock(clock func() time.Time) ControllerOption {
	return func(c *Controller) { c.clock = clock }
}

// WithDetectionHooks installs callbacks for stored detections and
// per-event detector failures, typically metrics counters. Either may
// be nil.
func WithDetectionHooks(onEmit func(indicator string), onFailure func(detector string)) ControllerOption {
	return func(c *Controller) {
		c.onEmit = onEmit
		c.onFailure = onFailure
	}
}

// NewController builds a controller owning a fresh engine over store.
// Construction problems are captured once here; every subsequent call
// then returns the degraded default rather than propagating.
func NewController(id string, cfg behavior.Config, store indicator.Store, opts ...ControllerOption) *Controller {
	c := &Controller{id: id, store: store, clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if err := validate(cfg, store); err != nil {
		c.constructErr = err
		log.Printf("session: %s construction failed: %v", id, err)
		return c
	}
	engineOpts := []behavior.Option{
		behavior.WithClock(func() int64 { return c.clock().UnixMilli() }),
	}
	if c.onEmit != nil {
		engineOpts = append(engineOpts, behavior.WithEmitHook(c.onEmit))
	}
	if c.onFailure != nil {
		engineOpts = append(engineOpts, behavior.WithFailureHook(c.onFailure))
	}
	c.engine = behavior.NewEngine(cfg, store, engineOpts...)
	return c
}

func validate(cfg behavior.Config, store indicator.Store) error {
	if store == nil {
		return errors.New("nil indicator store")
	}
	if cfg.NoMovement.TimeThresholdMS <= 0 {
		return fmt.Errorf("invalid no-movement window %d", cfg.NoMovement.TimeThresholdMS)
	}
	if cfg.MissingTrail.WarmupMS < 0 {
		return fmt.Errorf("invalid warmup %d", cfg.MissingTrail.WarmupMS)
	}
	return nil
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Collect runs one bounded capture window and blocks until it resolves.
// If a session is already collecting, the current partial snapshot is
// returned immediately rather than starting a second concurrent window.
// Collect never fails; the worst outcome is an under-reported result.
func (c *Controller) Collect(ctx context.Context, d time.Duration) Result {
	c.mu.Lock()
	if c.constructErr != nil {
		c.mu.Unlock()
		return degradedResult(c.id, c.constructErr)
	}
	if c.state == Collecting {
		res := c.snapshotLocked(true)
		c.mu.Unlock()
		return res
	}

	// Fresh window: clear prior session state so nothing leaks across.
	c.engine.Reset()
	c.store.ClearAll()
	c.state = Collecting
	c.startedAt = c.clock()
	c.duration = d
	c.stopCh = make(chan struct{})
	stop := c.stopCh
	c.mu.Unlock()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ticker.C:
			elapsed := c.clock().Sub(c.startedAt)
			if c.onProgress != nil {
				c.onProgress(elapsed, d)
			}
			if elapsed >= d {
				break loop
			}
		case <-stop:
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Idle
	res := c.snapshotLocked(false)
	c.lastResult = &res
	return res
}

// Stop ends the current window early. Takes effect within one polling
// tick; incoming events stop being recorded on the next event after the
// state flips back to idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Collecting || c.stopCh == nil {
		return
	}
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

// HandleEvent feeds one enriched interaction into the engine. Events
// arriving while idle are dropped; that is how cancellation lands.
func (c *Controller) HandleEvent(ev event.Interaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Collecting || c.engine == nil || !ev.Valid() {
		return
	}
	switch ev.Kind {
	case event.KindPointerMove:
		c.engine.HandlePointerMove(*ev.Pointer)
	case event.KindClick:
		c.engine.HandleClick(*ev.Click)
	case event.KindWheel:
		c.engine.HandleScroll(*ev.Wheel)
	}
}

// SetIngestSignals attaches request-level context captured at ingest
// time; it rides along on the next snapshot.
func (c *Controller) SetIngestSignals(s ingest.Signals) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ingestSig = &s
}

// Snapshot returns the current result without ending the session.
func (c *Controller) Snapshot() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.constructErr != nil {
		return degradedResult(c.id, c.constructErr)
	}
	if c.state == Idle && c.lastResult != nil {
		return *c.lastResult
	}
	return c.snapshotLocked(c.state == Collecting)
}

// TelemetryStats returns the descriptive stats only. Identical between
// calls when no new events arrived, except duration-derived fields.
func (c *Controller) TelemetryStats() behavior.Telemetry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return behavior.Telemetry{}
	}
	return c.engine.Telemetry()
}

// Reset clears all buffers and indicators between sessions. Atomic with
// respect to event handling: the same mutex serializes both.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil {
		c.engine.Reset()
	}
	if c.store != nil {
		c.store.ClearAll()
	}
	c.lastResult = nil
	c.ingestSig = nil
}

// snapshotLocked assembles a result. A panic anywhere in assembly
// degrades to the default object instead of escaping.
func (c *Controller) snapshotLocked(partial bool) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session: %s snapshot failed: %v", c.id, r)
			res = degradedResult(c.id, fmt.Errorf("snapshot failed: %v", r))
		}
	}()

	now := c.clock()
	res = Result{
		SessionID:  c.id,
		Indicators: c.store.BehavioralIndicators(),
		Summary:    c.store.DetectionSummary(),
		Telemetry:  c.engine.Telemetry(),
		Metadata: Metadata{
			StartedAt: c.startedAt,
			Partial:   partial,
			Ingest:    c.ingestSig,
		},
	}
	if !c.startedAt.IsZero() {
		res.CollectionDurationMS = now.Sub(c.startedAt).Milliseconds()
	}
	if !partial {
		res.Metadata.CompletedAt = now
	}
	return res
}
