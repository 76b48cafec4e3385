package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/botsense/botsense/internal/behavior"
)

type Config struct {
	ServerAddr   string
	TrustProxy   bool
	DNTRespect   bool
	MaxBodyBytes int64    // bytes for /collect payload
	IPHashSecret string   // if empty, client IPs are not hashed onto events
	Outputs      []string // enabled result sinks: log, kafka, postgres

	HMACSecret   string // shared secret for collect authentication
	HMACRequired bool

	SessionDuration time.Duration // default capture window

	// Middleware mode: proxy a destination site and inject the collector.
	MiddlewareMode      bool
	ForwardDestination  string
	AutoInjectCollector bool

	Detection behavior.Config
}

func getOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}
func getInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getStringSlice(k, def string) []string {
	v := os.Getenv(k)
	if v == "" {
		v = def
	}
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func Load() Config {
	return Config{
		ServerAddr:   getOr("SERVER_ADDR", ":19890"),
		TrustProxy:   getBool("TRUST_PROXY", false),
		DNTRespect:   getBool("DNT_RESPECT", true),
		MaxBodyBytes: getInt64("MAX_BODY_BYTES", 1<<20), // 1 MiB default
		IPHashSecret: getOr("IP_HASH_SECRET", ""),
		Outputs:      getStringSlice("OUTPUTS", "log"),

		HMACSecret:   getOr("HMAC_SECRET", ""),
		HMACRequired: getBool("HMAC_REQUIRED", false),

		SessionDuration: time.Duration(getInt64("SESSION_DURATION_MS", 15000)) * time.Millisecond,

		MiddlewareMode:      getBool("MIDDLEWARE_MODE", false),
		ForwardDestination:  getOr("FORWARD_DESTINATION", ""),
		AutoInjectCollector: getBool("AUTO_INJECT_COLLECTOR", true),

		Detection: loadDetection(),
	}
}

// loadDetection starts from the stock thresholds and applies env
// overrides. Every knob stays independently tunable.
func loadDetection() behavior.Config {
	cfg := behavior.DefaultConfig()

	cfg.CentralClick.CenterThresholdPx = getFloat("DETECT_CENTER_PX", cfg.CentralClick.CenterThresholdPx)
	cfg.CentralClick.ConfidenceThreshold = getFloat("DETECT_CENTER_CONFIDENCE", cfg.CentralClick.ConfidenceThreshold)

	cfg.NoMovement.TimeThresholdMS = getInt64("DETECT_NOMOVE_WINDOW_MS", cfg.NoMovement.TimeThresholdMS)
	cfg.NoMovement.StartTargetSelector = getOr("DETECT_START_SELECTOR", cfg.NoMovement.StartTargetSelector)

	cfg.Scroll.TimingRegularityThreshold = getFloat("DETECT_SCROLL_TIMING_REGULARITY", cfg.Scroll.TimingRegularityThreshold)
	cfg.Scroll.VelocityVarianceThreshold = getFloat("DETECT_SCROLL_VELOCITY_THRESHOLD", cfg.Scroll.VelocityVarianceThreshold)

	cfg.Timing.RegularityThreshold = getFloat("DETECT_TIMING_REGULARITY", cfg.Timing.RegularityThreshold)
	cfg.Timing.HumanVarianceMinMS2 = getFloat("DETECT_TIMING_HUMAN_VARIANCE_MIN", cfg.Timing.HumanVarianceMinMS2)

	cfg.MissingTrail.WarmupMS = getInt64("DETECT_WARMUP_MS", cfg.MissingTrail.WarmupMS)
	cfg.MissingTrail.ConfidenceThreshold = getFloat("DETECT_TRAIL_CONFIDENCE", cfg.MissingTrail.ConfidenceThreshold)

	return cfg
}
