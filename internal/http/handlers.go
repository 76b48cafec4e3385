package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/botsense/botsense/internal/assets"
	"github.com/botsense/botsense/internal/event"
	"github.com/botsense/botsense/internal/ingest"
	"github.com/botsense/botsense/internal/metrics"
	"github.com/botsense/botsense/internal/session"
	cfg "github.com/botsense/botsense/pkg/config"
)

var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00,
}

type Env struct {
	Cfg      cfg.Config
	Sessions *session.Manager
	Metrics  *metrics.Metrics
	HMACAuth *HMACAuth      // HMAC authentication handler, may be nil
	Tracker  ingest.Tracker // per-client ingest cadence
}

func (e Env) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (e Env) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Pixel is a page-load beacon: it registers a capture session and hands
// the id back in a header so the collector can adopt it.
func (e Env) Pixel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if e.Cfg.DNTRespect && r.Header.Get("DNT") == "1" {
		writePixel(w, r.Method == http.MethodHead)
		return
	}
	sid := r.URL.Query().Get("sid")
	sid, _ = e.Sessions.Start(sid, e.Cfg.SessionDuration)
	w.Header().Set("X-Botsense-Session", sid)
	writePixel(w, r.Method == http.MethodHead)
}

func writePixel(w http.ResponseWriter, headOnly bool) {
	h := w.Header()
	h.Set("Content-Type", "image/gif")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	if headOnly {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixelGIF)
}

// Collect accepts a single Interaction object or an array of them.
func (e Env) Collect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
		return
	}
	if e.Cfg.DNTRespect && r.Header.Get("DNT") == "1" {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"accepted": 0, "status": "dnt"})
		return
	}

	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.Cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if e.HMACAuth != nil && !e.HMACAuth.VerifyHMAC(r, body) {
		http.Error(w, "invalid or missing HMAC signature", http.StatusUnauthorized)
		return
	}

	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var batch []event.Interaction
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &batch); err != nil {
			http.Error(w, "invalid json array", http.StatusBadRequest)
			return
		}
	} else {
		var ev event.Interaction
		if err := json.Unmarshal(raw, &ev); err != nil {
			http.Error(w, "invalid json object", http.StatusBadRequest)
			return
		}
		batch = []event.Interaction{ev}
	}

	// Request-level context is captured once per post and attached to
	// the session the batch belongs to.
	clientIP := event.ClientIP(r, e.Cfg.TrustProxy)
	signals := ingest.Analyze(r, body, e.Tracker, clientIP)

	accepted := 0
	for i := range batch {
		ev := &batch[i]
		event.EnrichServerFields(r, ev, e.Cfg)
		if !ev.Valid() {
			continue
		}
		ctrl, sid := e.Sessions.GetOrStart(ev.SessionID)
		if ctrl == nil {
			continue
		}
		ev.SessionID = sid
		ctrl.SetIngestSignals(signals)
		ctrl.HandleEvent(*ev)
		if e.Metrics != nil {
			e.Metrics.IncrementEventsIngested(ev.Kind)
		}
		accepted++
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"accepted": accepted, "status": "ok"})
}

// SessionStart begins a bounded capture window.
// POST /session/start {"session_id": "...", "duration_ms": 15000}
func (e Env) SessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SessionID  string `json:"session_id"`
		DurationMS int64  `json:"duration_ms"`
	}
	if r.Body != nil {
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means defaults
	}
	d := e.Cfg.SessionDuration
	if req.DurationMS > 0 {
		d = durationMS(req.DurationMS)
	}
	sid, started := e.Sessions.Start(req.SessionID, d)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": sid,
		"started":    started,
	})
}

// SessionStop ends a capture window early.
func (e Env) SessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	if !e.Sessions.Stop(id) {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("stopping"))
}

// SessionResult returns the full result object: final when the session
// completed, a partial snapshot while it is still collecting.
func (e Env) SessionResult(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	res, ok := e.Sessions.Result(id)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// SessionTelemetry returns the descriptive stats only.
func (e Env) SessionTelemetry(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	ctrl, ok := e.Sessions.Get(id)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ctrl.TelemetryStats())
}

// CollectorScript serves the embedded browser collector.
func (e Env) CollectorScript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(assets.CollectorJS)
}

func (e Env) HMACScript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if e.HMACAuth == nil {
		http.Error(w, "HMAC authentication not configured", http.StatusNotFound)
		return
	}

	script := e.HMACAuth.GenerateClientScript()
	if script == "" {
		http.Error(w, "HMAC client script not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(script))
}

func (e Env) HMACPublicKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if e.HMACAuth == nil {
		http.Error(w, "HMAC authentication not configured", http.StatusNotFound)
		return
	}

	publicKey := e.HMACAuth.GetPublicKeyBase64()
	if publicKey == "" {
		http.Error(w, "HMAC public key not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"public_key": publicKey,
		"algorithm":  "HMAC-SHA256",
		"header":     hmacHeader,
	})
}
