package ingest

import (
	"sync"
	"time"
)

// Tracker remembers when each client last posted, so ingest cadence can
// be measured. Injected for testability.
type Tracker interface {
	Record(ip string, ts time.Time)
	Last(ip string) (time.Time, bool)
}

// MemoryTracker is the in-process Tracker. A distributed deployment
// would back this with Redis; one process is enough here.
type MemoryTracker struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{last: make(map[string]time.Time)}
}

func (t *MemoryTracker) Record(ip string, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[ip] = ts
}

func (t *MemoryTracker) Last(ip string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ts, ok := t.last[ip]
	return ts, ok
}

// roundDivisors, largest first. Automation posts on suspiciously round
// intervals; the largest divisor the interval lands on is recorded.
var roundDivisors = []int64{1000, 500, 100, 50, 10}

func analyzeTiming(tracker Tracker, clientIP string) TimingSignals {
	sig := TimingSignals{}
	if tracker == nil {
		return sig
	}
	now := time.Now()
	if last, ok := tracker.Last(clientIP); ok {
		interval := now.Sub(last)
		sig.IntervalMS = float64(interval.Nanoseconds()) / 1e6
		sig.HasPrevious = true

		sig.IntervalPrecision = roundPrecision(interval.Milliseconds())
	}
	tracker.Record(clientIP, now)
	return sig
}

// roundPrecision returns the largest round divisor of ms, or 0.
func roundPrecision(ms int64) int {
	if ms <= 0 {
		return 0
	}
	for _, d := range roundDivisors {
		if ms%d == 0 {
			return int(d)
		}
	}
	return 0
}
