package httpx

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewHMACAuth(t *testing.T) {
	t.Run("derives public key from secret", func(t *testing.T) {
		auth := NewHMACAuth("secret-one", "", true)
		key := auth.GetPublicKeyBase64()
		if key == "" {
			t.Fatal("expected a derived public key")
		}
		decoded, err := base64.StdEncoding.DecodeString(key)
		if err != nil {
			t.Fatalf("public key is not base64: %v", err)
		}
		if len(decoded) != 16 {
			t.Errorf("derived key length = %d, want 16", len(decoded))
		}

		// Derivation is deterministic per secret.
		if again := NewHMACAuth("secret-one", "", true).GetPublicKeyBase64(); again != key {
			t.Error("same secret derived different public keys")
		}
		if other := NewHMACAuth("secret-two", "", true).GetPublicKeyBase64(); other == key {
			t.Error("different secrets derived the same public key")
		}
	})

	t.Run("explicit public key wins", func(t *testing.T) {
		explicit := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))
		auth := NewHMACAuth("secret", explicit, true)
		if got := auth.GetPublicKeyBase64(); got != explicit {
			t.Errorf("public key = %q, want explicit %q", got, explicit)
		}
	})

	t.Run("malformed public key falls back to derived", func(t *testing.T) {
		auth := NewHMACAuth("secret", "!!!not-base64!!!", true)
		if got := auth.GetPublicKeyBase64(); got == "" {
			t.Error("expected fallback to derived key")
		}
	})

	t.Run("no secret no key", func(t *testing.T) {
		auth := NewHMACAuth("", "", false)
		if got := auth.GetPublicKeyBase64(); got != "" {
			t.Errorf("public key = %q, want empty", got)
		}
		if script := auth.GenerateClientScript(); script != "" {
			t.Error("client script should be empty without a key")
		}
	})
}

func TestNormalizeIP(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"192.168.1.1:8080", "192.168.1.1"},
		{"192.168.1.1", "192.168.1.1"},
		{"[::1]:8080", "::1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"10.0.0.1", "10.0.0.1"},
		{"not-an-ip", "not-an-ip"},
	}
	for _, tc := range tests {
		if got := normalizeIP(tc.in); got != tc.want {
			t.Errorf("normalizeIP(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRequestIP(t *testing.T) {
	t.Run("forwarded-for first hop", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/collect", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		if got := requestIP(r); got != "203.0.113.7" {
			t.Errorf("requestIP = %q, want 203.0.113.7", got)
		}
	})

	t.Run("real-ip fallback", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/collect", nil)
		r.Header.Set("X-Real-IP", " 198.51.100.4 ")
		if got := requestIP(r); got != "198.51.100.4" {
			t.Errorf("requestIP = %q, want 198.51.100.4", got)
		}
	})

	t.Run("remote addr fallback", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/collect", nil)
		if got := requestIP(r); got != r.RemoteAddr {
			t.Errorf("requestIP = %q, want %q", got, r.RemoteAddr)
		}
	})
}

func TestVerifyHMAC(t *testing.T) {
	const payload = `{"kind":"click"}`

	t.Run("not required always passes", func(t *testing.T) {
		auth := NewHMACAuth("secret", "", false)
		r := httptest.NewRequest(http.MethodPost, "/collect", nil)
		if !auth.VerifyHMAC(r, []byte(payload)) {
			t.Error("optional HMAC should pass without a signature")
		}
	})

	t.Run("required but missing fails", func(t *testing.T) {
		auth := NewHMACAuth("secret", "", true)
		r := httptest.NewRequest(http.MethodPost, "/collect", nil)
		if auth.VerifyHMAC(r, []byte(payload)) {
			t.Error("missing signature should fail when required")
		}
	})

	t.Run("required without secret fails", func(t *testing.T) {
		auth := NewHMACAuth("", "", true)
		r := httptest.NewRequest(http.MethodPost, "/collect", nil)
		r.Header.Set(hmacHeader, "deadbeef")
		if auth.VerifyHMAC(r, []byte(payload)) {
			t.Error("verification should fail with no secret configured")
		}
	})

	t.Run("valid signature passes", func(t *testing.T) {
		auth := NewHMACAuth("secret", "", true)
		r := httptest.NewRequest(http.MethodPost, "/collect", nil)
		r.Header.Set(hmacHeader, auth.generateHMAC([]byte(payload), r.RemoteAddr))
		if !auth.VerifyHMAC(r, []byte(payload)) {
			t.Error("valid signature rejected")
		}
	})

	t.Run("signature is bound to client ip", func(t *testing.T) {
		auth := NewHMACAuth("secret", "", true)
		r := httptest.NewRequest(http.MethodPost, "/collect", nil)
		r.Header.Set(hmacHeader, auth.generateHMAC([]byte(payload), "203.0.113.99"))
		if auth.VerifyHMAC(r, []byte(payload)) {
			t.Error("signature for another IP should not verify")
		}

		// Same signature verifies once the request presents that IP.
		r.Header.Set("X-Forwarded-For", "203.0.113.99")
		if !auth.VerifyHMAC(r, []byte(payload)) {
			t.Error("signature should verify for the signing IP")
		}
	})

	t.Run("tampered payload fails", func(t *testing.T) {
		auth := NewHMACAuth("secret", "", true)
		r := httptest.NewRequest(http.MethodPost, "/collect", nil)
		r.Header.Set(hmacHeader, auth.generateHMAC([]byte(payload), r.RemoteAddr))
		if auth.VerifyHMAC(r, []byte(payload+" ")) {
			t.Error("modified payload should not verify")
		}
	})
}

func TestGenerateClientScript(t *testing.T) {
	auth := NewHMACAuth("secret", "", true)
	script := auth.GenerateClientScript()
	if script == "" {
		t.Fatal("expected a client script")
	}
	if !strings.Contains(script, auth.GetPublicKeyBase64()) {
		t.Error("script is missing the embedded public key")
	}
	if !strings.Contains(script, hmacHeader) {
		t.Errorf("script does not set the %s header", hmacHeader)
	}
	if !strings.Contains(script, "window.fetch") {
		t.Error("script does not wrap window.fetch")
	}
}
