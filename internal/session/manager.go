package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/botsense/botsense/internal/behavior"
	"github.com/botsense/botsense/internal/indicator"
)

// retainCompleted is how long a finished session stays queryable before
// the sweeper drops it.
const retainCompleted = 10 * time.Minute

// Manager owns the live session registry. Each session gets its own
// controller, engine, and indicator store, so sessions never
// cross-contaminate.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry

	cfg             behavior.Config
	defaultDuration time.Duration

	onComplete func(Result)           // sink fan-out
	onActive   func(active int)       // metrics gauge hook
	onEmit     func(indicator string) // per-detection metrics hook
	onFailure  func(detector string)  // detector-failure metrics hook
}

type entry struct {
	ctrl    *Controller
	done    bool
	doneAt  time.Time
	cancel  context.CancelFunc
}

// ManagerOption customizes the manager.
type ManagerOption func(*Manager)

// WithOnComplete installs the finished-result callback.
func WithOnComplete(fn func(Result)) ManagerOption {
	return func(m *Manager) { m.onComplete = fn }
}

// WithActiveGauge installs a hook called with the active session count
// whenever it changes.
func WithActiveGauge(fn func(active int)) ManagerOption {
	return func(m *Manager) { m.onActive = fn }
}

// WithManagerDetectionHooks installs the per-detection and
// detector-failure callbacks passed to every controller this manager
// creates.
func WithManagerDetectionHooks(onEmit func(indicator string), onFailure func(detector string)) ManagerOption {
	return func(m *Manager) {
		m.onEmit = onEmit
		m.onFailure = onFailure
	}
}

// NewManager creates a session registry.
func NewManager(cfg behavior.Config, defaultDuration time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions:        make(map[string]*entry),
		cfg:             cfg,
		defaultDuration: defaultDuration,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins a capture session. An empty id gets a generated one. If
// the session already exists and is collecting, Start is a no-op and
// returns the existing id with started=false.
func (m *Manager) Start(id string, d time.Duration) (sessionID string, started bool) {
	if id == "" {
		id = uuid.New().String()
	}
	if d <= 0 {
		d = m.defaultDuration
	}

	m.mu.Lock()
	if ent, ok := m.sessions[id]; ok && !ent.done && ent.ctrl.State() == Collecting {
		m.mu.Unlock()
		return id, false
	}
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := NewController(id, m.cfg, indicator.NewMemoryStore(),
		WithDetectionHooks(m.onEmit, m.onFailure))
	m.sessions[id] = &entry{ctrl: ctrl, cancel: cancel}
	active := m.activeLocked()
	m.mu.Unlock()

	if m.onActive != nil {
		m.onActive(active)
	}

	go func() {
		res := ctrl.Collect(ctx, d)
		cancel()

		m.mu.Lock()
		if ent, ok := m.sessions[id]; ok {
			ent.done = true
			ent.doneAt = time.Now()
		}
		active := m.activeLocked()
		m.mu.Unlock()

		if m.onActive != nil {
			m.onActive(active)
		}
		if m.onComplete != nil {
			m.onComplete(res)
		}
		log.Printf("session: %s completed risk=%s detected=%d",
			id, res.Summary.RiskLevel, res.Summary.DetectedCount)
	}()

	return id, true
}

// DetectionConfig returns the detector thresholds sessions run with.
func (m *Manager) DetectionConfig() behavior.Config {
	return m.cfg
}

// Get returns the controller for id.
func (m *Manager) Get(id string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ent, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return ent.ctrl, true
}

// GetOrStart returns the controller for id, starting a session with the
// default duration when none exists. Lets collectors post events before
// (or without) an explicit start call.
func (m *Manager) GetOrStart(id string) (*Controller, string) {
	if id != "" {
		if ctrl, ok := m.Get(id); ok {
			return ctrl, id
		}
	}
	id, _ = m.Start(id, m.defaultDuration)
	ctrl, _ := m.Get(id)
	return ctrl, id
}

// Stop ends the session early.
func (m *Manager) Stop(id string) bool {
	ctrl, ok := m.Get(id)
	if !ok {
		return false
	}
	ctrl.Stop()
	return true
}

// Result returns the session's result: the final one when completed, a
// partial snapshot while collecting.
func (m *Manager) Result(id string) (Result, bool) {
	ctrl, ok := m.Get(id)
	if !ok {
		return Result{}, false
	}
	return ctrl.Snapshot(), true
}

// ActiveCount returns the number of collecting sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked()
}

func (m *Manager) activeLocked() int {
	n := 0
	for _, ent := range m.sessions {
		if !ent.done {
			n++
		}
	}
	return n
}

// Sweep drops completed sessions older than the retention window.
// Call it periodically from the host.
func (m *Manager) Sweep() {
	cutoff := time.Now().Add(-retainCompleted)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ent := range m.sessions {
		if ent.done && ent.doneAt.Before(cutoff) {
			delete(m.sessions, id)
		}
	}
}

// Shutdown cancels every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ent := range m.sessions {
		ent.cancel()
	}
}
