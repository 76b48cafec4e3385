package event

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/botsense/botsense/pkg/config"
)

// EnrichServerFields normalizes fields the server can set or augment
// safely: ids, timestamps, user agent, and a hashed client IP.
func EnrichServerFields(r *http.Request, e *Interaction, cfg config.Config) {
	now := time.Now().UnixMilli()
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	if e.TS == 0 {
		e.TS = now
	}
	e.Server.ReceivedTS = now
	if e.Server.UA == "" {
		e.Server.UA = r.UserAgent()
	}
	if cfg.IPHashSecret != "" {
		e.Server.IPHash = hashIP(ClientIP(r, cfg.TrustProxy), cfg.IPHashSecret)
	}

	// Payload timestamps default to the envelope's.
	switch {
	case e.Pointer != nil && e.Pointer.TS == 0:
		e.Pointer.TS = e.TS
	case e.Click != nil && e.Click.TS == 0:
		e.Click.TS = e.TS
	case e.Wheel != nil && e.Wheel.TS == 0:
		e.Wheel.TS = e.TS
	}
}

// ClientIP extracts the client IP, honoring proxy headers only when the
// deployment says the proxy is trusted.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
		if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
			return strings.TrimSpace(xrip)
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// hashIP keyed-hashes an IP so stored results never carry raw addresses.
func hashIP(ip, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil)[:16])
}
