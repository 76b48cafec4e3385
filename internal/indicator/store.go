// Package indicator holds the result store the behavioral engine
// reports into: per-name counters, retained max confidence, and a
// bounded list of recent detail samples.
package indicator

import (
	"fmt"
	"sync"
	"time"

	"github.com/botsense/botsense/internal/behavior"
)

// detailCap bounds the recent-samples list per indicator,
// most-recent-first.
const detailCap = 20

// Risk levels reported by DetectionSummary.
const (
	RiskNone     = "NONE"
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
	RiskUnknown  = "UNKNOWN"
)

// Indicator is the aggregate view of one named automation signal.
type Indicator struct {
	Name        string           `json:"name"`
	Count       int              `json:"count"`
	Confidence  float64          `json:"confidence"` // max seen
	Details     []map[string]any `json:"details,omitempty"`
	Threshold   float64          `json:"threshold"`
	LastUpdated time.Time        `json:"last_updated"`
}

// Summary condenses the store into a single risk read-out.
type Summary struct {
	RiskLevel     string  `json:"risk_level"`
	DetectedCount int     `json:"detected_count"`
	TotalEvents   int     `json:"total_events"`
	MaxConfidence float64 `json:"max_confidence"`
	Text          string  `json:"summary"`
}

// Store is the collaborator contract consumed by the engine and read by
// hosts. UpdateIndicator must never propagate a failure back into the
// detector path.
type Store interface {
	behavior.Emitter
	BehavioralIndicators() map[string]Indicator
	DetectionSummary() Summary
	ClearAll()
}

// defaultThresholds mirror the per-detector emit thresholds so readers
// can tell a strong signal from a marginal one.
var defaultThresholds = map[string]float64{
	behavior.IndicatorCentralClicks: 0.8,
	behavior.IndicatorNoMovement:    0.75,
	behavior.IndicatorScroll:        0.75,
	behavior.IndicatorTiming:        0.8,
	behavior.IndicatorMissingTrails: 0.7,
}

// MemoryStore is the in-memory Store implementation. Safe for
// concurrent use; host UIs may read while a session is collecting.
type MemoryStore struct {
	mu          sync.RWMutex
	byName      map[string]*Indicator
	totalEvents int
	clock       func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byName: make(map[string]*Indicator),
		clock:  time.Now,
	}
}

// UpdateIndicator applies one proposed update: increments the counter
// when asked, retains the maximum confidence seen, and prepends the
// detail to the bounded recent-samples list.
func (s *MemoryStore) UpdateIndicator(name string, u behavior.IndicatorUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ind, ok := s.byName[name]
	if !ok {
		ind = &Indicator{Name: name, Threshold: defaultThresholds[name]}
		s.byName[name] = ind
	}
	if u.Increment {
		ind.Count++
		s.totalEvents++
	}
	if u.Confidence > ind.Confidence {
		ind.Confidence = u.Confidence
	}
	if u.Detail != nil {
		ind.Details = append([]map[string]any{u.Detail}, ind.Details...)
		if len(ind.Details) > detailCap {
			ind.Details = ind.Details[:detailCap]
		}
	}
	ind.LastUpdated = s.clock()
}

// BehavioralIndicators returns a deep-enough copy of the current state.
func (s *MemoryStore) BehavioralIndicators() map[string]Indicator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Indicator, len(s.byName))
	for name, ind := range s.byName {
		cp := *ind
		cp.Details = append([]map[string]any(nil), ind.Details...)
		out[name] = cp
	}
	return out
}

// DetectionSummary condenses the indicators into a risk level.
func (s *MemoryStore) DetectionSummary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{RiskLevel: RiskNone, TotalEvents: s.totalEvents}
	for _, ind := range s.byName {
		if ind.Count == 0 {
			continue
		}
		sum.DetectedCount++
		if ind.Confidence > sum.MaxConfidence {
			sum.MaxConfidence = ind.Confidence
		}
	}

	switch {
	case sum.DetectedCount == 0:
		sum.RiskLevel = RiskNone
	case sum.MaxConfidence >= 0.9 && sum.DetectedCount >= 2:
		sum.RiskLevel = RiskCritical
	case sum.MaxConfidence >= 0.85:
		sum.RiskLevel = RiskHigh
	case sum.MaxConfidence >= 0.75:
		sum.RiskLevel = RiskMedium
	default:
		sum.RiskLevel = RiskLow
	}

	if sum.DetectedCount == 0 {
		sum.Text = "no automation patterns observed"
	} else {
		sum.Text = fmt.Sprintf("%d automation pattern(s) observed, max confidence %.2f",
			sum.DetectedCount, sum.MaxConfidence)
	}
	return sum
}

// ClearAll resets the store to its empty state.
func (s *MemoryStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName = make(map[string]*Indicator)
	s.totalEvents = 0
}
