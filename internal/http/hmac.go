package httpx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
)

// hmacHeader carries the client's signature for collect payloads.
const hmacHeader = "X-BotSense-HMAC"

// wsHandshakeMessage is what a client signs to authenticate a websocket
// upgrade; the upgrade request has no body to sign.
const wsHandshakeMessage = "botsense-ws-handshake"

// HMACAuth handles HMAC authentication for collection endpoints
type HMACAuth struct {
	secret      []byte
	publicKey   []byte
	requireHMAC bool
}

// NewHMACAuth creates a new HMAC authentication handler
func NewHMACAuth(secret, publicKey string, requireHMAC bool) *HMACAuth {
	auth := &HMACAuth{
		secret:      []byte(secret),
		requireHMAC: requireHMAC,
	}

	if publicKey != "" {
		if decoded, err := base64.StdEncoding.DecodeString(publicKey); err == nil {
			auth.publicKey = decoded
		} else {
			log.Printf("WARNING: Invalid HMAC_PUBLIC_KEY format, using derived key")
		}
	}

	if len(auth.publicKey) == 0 && len(auth.secret) > 0 {
		auth.publicKey = auth.derivePublicKey(auth.secret)
	}

	return auth
}

// derivePublicKey creates a public key from the secret
func (h *HMACAuth) derivePublicKey(secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("botsense-public-key-derivation"))
	return mac.Sum(nil)[:16]
}

// GetPublicKeyBase64 returns the base64-encoded public key for client use
func (h *HMACAuth) GetPublicKeyBase64() string {
	if len(h.publicKey) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(h.publicKey)
}

// generateHMAC creates HMAC for payload using an IP-derived key
func (h *HMACAuth) generateHMAC(payload []byte, clientIP string) string {
	if len(h.secret) == 0 {
		return ""
	}

	derivedKey := h.deriveClientKey(clientIP)

	mac := hmac.New(sha256.New, derivedKey)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// deriveClientKey creates a client-specific key from secret + IP
func (h *HMACAuth) deriveClientKey(clientIP string) []byte {
	ip := normalizeIP(clientIP)

	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte("client-key:" + ip))
	return mac.Sum(nil)
}

// normalizeIP extracts and normalizes an IP address
func normalizeIP(addr string) string {
	// [::1]:8080 -> ::1
	if strings.HasPrefix(addr, "[") {
		if idx := strings.LastIndex(addr, "]"); idx > 0 {
			return addr[1:idx]
		}
	}

	// 192.168.1.1:8080 -> 192.168.1.1
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}

	return addr
}

// VerifyHMAC validates the HMAC signature for a request
func (h *HMACAuth) VerifyHMAC(r *http.Request, payload []byte) bool {
	if !h.requireHMAC {
		return true
	}

	if len(h.secret) == 0 {
		log.Printf("HMAC verification failed: no secret configured")
		return false
	}

	providedHMAC := r.Header.Get(hmacHeader)
	if providedHMAC == "" {
		log.Printf("HMAC verification failed: missing %s header", hmacHeader)
		return false
	}

	clientIP := requestIP(r)
	expectedHMAC := h.generateHMAC(payload, clientIP)

	if !hmac.Equal([]byte(providedHMAC), []byte(expectedHMAC)) {
		log.Printf("HMAC verification failed for IP %s", clientIP)
		return false
	}

	return true
}

// VerifyWSHandshake validates the signature on a websocket upgrade
// request. The signature covers the fixed handshake message with the
// same IP-derived key used for collect payloads. Browsers cannot set
// headers on a websocket dial, so the "hmac" query parameter is
// accepted as an alternative carrier.
func (h *HMACAuth) VerifyWSHandshake(r *http.Request) bool {
	if !h.requireHMAC {
		return true
	}

	if len(h.secret) == 0 {
		log.Printf("HMAC handshake failed: no secret configured")
		return false
	}

	providedHMAC := r.Header.Get(hmacHeader)
	if providedHMAC == "" {
		providedHMAC = r.URL.Query().Get("hmac")
	}
	if providedHMAC == "" {
		log.Printf("HMAC handshake failed: no signature on upgrade request")
		return false
	}

	clientIP := requestIP(r)
	expectedHMAC := h.generateHMAC([]byte(wsHandshakeMessage), clientIP)

	if !hmac.Equal([]byte(providedHMAC), []byte(expectedHMAC)) {
		log.Printf("HMAC handshake failed for IP %s", clientIP)
		return false
	}

	return true
}

// requestIP extracts the real client IP considering proxies
func requestIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

// GenerateClientScript generates JavaScript for client-side HMAC signing
func (h *HMACAuth) GenerateClientScript() string {
	if len(h.publicKey) == 0 {
		return ""
	}

	publicKeyB64 := h.GetPublicKeyBase64()

	return fmt.Sprintf(`
// botsense HMAC authentication
(function() {
  const BOTSENSE_PUBLIC_KEY = '%s';

  async function generateHMAC(payload, key) {
    const encoder = new TextEncoder();
    const cryptoKey = await crypto.subtle.importKey(
      'raw', encoder.encode(key), { name: 'HMAC', hash: 'SHA-256' }, false, ['sign']
    );
    const signature = await crypto.subtle.sign('HMAC', cryptoKey, encoder.encode(payload));
    return Array.from(new Uint8Array(signature))
      .map(b => b.toString(16).padStart(2, '0'))
      .join('');
  }

  const originalFetch = window.fetch;
  window.fetch = async function(url, options = {}) {
    if (url.includes('/collect') && options.method === 'POST' && options.body) {
      try {
        const hmac = await generateHMAC(options.body, BOTSENSE_PUBLIC_KEY);
        options.headers = options.headers || {};
        options.headers['%s'] = hmac;
      } catch (e) {
        console.warn('botsense HMAC generation failed:', e);
      }
    }
    return originalFetch.call(this, url, options);
  };
})();
`, publicKeyB64, hmacHeader)
}
