package behavior

// Config carries per-detector thresholds. It is immutable for the
// lifetime of an engine; override fields before construction.
type Config struct {
	CentralClick CentralClickConfig
	NoMovement   NoMovementConfig
	Scroll       ScrollConfig
	Timing       TimingConfig
	MissingTrail MissingTrailConfig
}

// CentralClickConfig tunes the central-click detector.
type CentralClickConfig struct {
	CenterThresholdPx   float64 // max distance from element center to count as central
	MinSamples          int     // pattern strength normalizer
	ConfidenceThreshold float64 // emit at or above this confidence
	PatternWindow       int     // how many recent clicks form the pattern
}

// NoMovementConfig tunes the teleport-click detector.
type NoMovementConfig struct {
	TimeThresholdMS     int64   // lookback window before the click
	MinimalPathPx       float64 // cumulative path length treated as "minimal"
	StartTargetSelector string  // the control that begins tracking; its first click is skipped
}

// ScrollConfig tunes the non-human scroll detector.
//
// VelocityVarianceThreshold is deliberately far more permissive than
// TimingRegularityThreshold: human scroll velocity is inherently more
// uniform than human timing, so any above-baseline uniformity counts.
// The two are independently tunable; do not assume symmetry.
type ScrollConfig struct {
	MinSamples                int
	Window                    int
	TimingRegularityThreshold float64
	VelocityVarianceThreshold float64
	PerfectValueStep          float64 // deltaY multiples of this are "perfect values"
	PerfectValueBonus         float64
	ConfidenceThreshold       float64
}

// TimingConfig tunes the artificial-timing detector.
type TimingConfig struct {
	MinSamples          int     // minimum buffered click timestamps
	Window              int     // clicks considered
	RegularityThreshold float64
	HumanVarianceMinMS2 float64 // genuine human timing jitters above this floor
	LowVarianceBonus    float64
	ConfidenceThreshold float64
}

// MissingTrailConfig tunes the teleporting-cursor detector. It is the
// most conservatively gated detector: nothing fires during WarmupMS or
// before MinClicks clicks have been seen.
type MissingTrailConfig struct {
	WarmupMS            int64
	MinClicks           int
	ShortWindowMS       int64 // 1s activity window
	MidWindowMS         int64 // 3s activity window
	LongWindowMS        int64 // 5s activity window
	MidWindowMinSamples int   // expected minimum activity in the mid window
	StaleMoveMS         int64 // time since last movement treated as stale
	ConfidenceThreshold float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		CentralClick: CentralClickConfig{
			CenterThresholdPx:   2,
			MinSamples:          3,
			ConfidenceThreshold: 0.8,
			PatternWindow:       10,
		},
		NoMovement: NoMovementConfig{
			TimeThresholdMS:     1000,
			MinimalPathPx:       5,
			StartTargetSelector: "#start-tracking",
		},
		Scroll: ScrollConfig{
			MinSamples:                10,
			Window:                    20,
			TimingRegularityThreshold: 0.9,
			VelocityVarianceThreshold: 0.1,
			PerfectValueStep:          100,
			PerfectValueBonus:         0.3,
			ConfidenceThreshold:       0.75,
		},
		Timing: TimingConfig{
			MinSamples:          5,
			Window:              20,
			RegularityThreshold: 0.85,
			HumanVarianceMinMS2: 50,
			LowVarianceBonus:    0.2,
			ConfidenceThreshold: 0.8,
		},
		MissingTrail: MissingTrailConfig{
			WarmupMS:            2000,
			MinClicks:           2,
			ShortWindowMS:       1000,
			MidWindowMS:         3000,
			LongWindowMS:        5000,
			MidWindowMinSamples: 3,
			StaleMoveMS:         2000,
			ConfidenceThreshold: 0.7,
		},
	}
}
