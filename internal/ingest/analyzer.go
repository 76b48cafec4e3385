package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
)

// Keywords that betray automation tooling or AI-operated browsers when
// they appear in the user agent or header values.
var automationKeywords = []string{
	"headless", "selenium", "webdriver", "puppeteer", "playwright",
	"phantom", "jsdom", "electron", "comet", "gptbot", "claude",
	"perplexity", "automated", "bot", "crawler",
}

// Headers a real browser always sends with a fetch/XHR payload.
var expectedHeaders = []string{"User-Agent", "Accept", "Accept-Language", "Accept-Encoding"}

// Analyze collects request-level signals for one ingest request. It
// never fails; on any missing data the corresponding signal is zero.
func Analyze(r *http.Request, body []byte, tracker Tracker, clientIP string) Signals {
	s := Signals{
		HeaderFingerprint: fingerprintHeaders(r.Header),
		Headers:           analyzeHeaders(r.Header),
		UserAgent:         analyzeUserAgent(r.UserAgent()),
		Timing:            analyzeTiming(tracker, clientIP),
		PayloadSize:       len(body),
	}
	if len(body) > 0 {
		s.PayloadEntropy = shannonEntropy(body)
	}
	return s
}

func analyzeHeaders(headers http.Header) HeaderSignals {
	sig := HeaderSignals{HeaderCount: len(headers)}

	for key, values := range headers {
		for _, value := range values {
			lower := strings.ToLower(value)
			for _, kw := range automationKeywords {
				if strings.Contains(lower, kw) {
					sig.AutomationHeaders = append(sig.AutomationHeaders,
						fmt.Sprintf("%s: %s", key, value))
					break
				}
			}
		}
	}
	sort.Strings(sig.AutomationHeaders)

	for _, expected := range expectedHeaders {
		if headers.Get(expected) == "" {
			sig.MissingExpected = append(sig.MissingExpected, expected)
		}
	}
	return sig
}

func analyzeUserAgent(ua string) UASignals {
	sig := UASignals{Length: len(ua)}
	lower := strings.ToLower(ua)
	for _, kw := range automationKeywords {
		if strings.Contains(lower, kw) {
			sig.ContainsAutomation = true
			sig.AutomationKeywords = append(sig.AutomationKeywords, kw)
		}
	}
	return sig
}

// fingerprintHeaders hashes the header names plus truncated values so
// identical automation stacks cluster under one fingerprint.
func fingerprintHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, strings.ToLower(key))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := headers.Get(key)
		if len(value) > 20 {
			value = value[:20]
		}
		parts = append(parts, key+":"+value)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:8])
}

func shannonEntropy(data []byte) float64 {
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	entropy := 0.0
	n := float64(len(data))
	for _, count := range freq {
		if count > 0 {
			p := float64(count) / n
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}
