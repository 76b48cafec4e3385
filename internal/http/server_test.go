package httpx

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/botsense/botsense/internal/metrics"
	cfg "github.com/botsense/botsense/pkg/config"
)

func TestDurationMS(t *testing.T) {
	if got := durationMS(1500); got != 1500*time.Millisecond {
		t.Errorf("durationMS(1500) = %v, want 1.5s", got)
	}
	if got := durationMS(0); got != 0 {
		t.Errorf("durationMS(0) = %v, want 0", got)
	}
}

func TestIsTrackingPath(t *testing.T) {
	tracking := []string{
		"/px.gif", "/collect", "/ws", "/session/start", "/session/stop",
		"/session/result", "/session/telemetry", "/healthz", "/readyz",
		"/metrics", "/hmac.js", "/hmac/public-key", "/collector.js",
	}
	for _, p := range tracking {
		if !isTrackingPath(p) {
			t.Errorf("isTrackingPath(%q) = false, want true", p)
		}
	}
	for _, p := range []string{"/", "/index.html", "/collects", "/px.gif/extra", "/session"} {
		if isTrackingPath(p) {
			t.Errorf("isTrackingPath(%q) = true, want false", p)
		}
	}
}

func TestIsHTMLContent(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"TEXT/HTML", true},
		{"application/xhtml+xml", true},
		{"application/json", false},
		{"image/png", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := isHTMLContent(tc.ct); got != tc.want {
			t.Errorf("isHTMLContent(%q) = %v, want %v", tc.ct, got, tc.want)
		}
	}
}

func TestInjectCollector(t *testing.T) {
	t.Run("before closing body tag", func(t *testing.T) {
		out := string(injectCollector([]byte("<html><body><p>hi</p></body></html>"), nil))
		if !strings.Contains(out, "<script>") {
			t.Fatal("no script injected")
		}
		if strings.Index(out, "<script>") > strings.Index(out, "</body>") {
			t.Error("script injected after </body>")
		}
	})

	t.Run("case insensitive body tag", func(t *testing.T) {
		out := string(injectCollector([]byte("<HTML><BODY>hi</BODY></HTML>"), nil))
		if !strings.Contains(out, "<script>") {
			t.Error("no script injected for uppercase tags")
		}
	})

	t.Run("falls back to html tag", func(t *testing.T) {
		out := string(injectCollector([]byte("<html><p>no body tag</p></html>"), nil))
		if strings.Index(out, "<script>") > strings.Index(out, "</html>") {
			t.Error("script injected after </html>")
		}
	})

	t.Run("appends when no closing tags", func(t *testing.T) {
		out := string(injectCollector([]byte("<p>fragment</p>"), nil))
		if !strings.HasSuffix(strings.TrimSpace(out), "</script>") {
			t.Error("script not appended to tagless fragment")
		}
	})

	t.Run("hmac auth adds signing script", func(t *testing.T) {
		auth := NewHMACAuth("secret", "", true)
		out := string(injectCollector([]byte("<body></body>"), auth))
		if !strings.Contains(out, `<script src="/hmac.js"></script>`) {
			t.Error("hmac.js script tag missing")
		}
	})

	t.Run("plain injection skips signing script", func(t *testing.T) {
		out := string(injectCollector([]byte("<body></body>"), nil))
		if strings.Contains(out, "hmac.js") {
			t.Error("hmac.js injected without auth configured")
		}
	})
}

func TestProxyHandler(t *testing.T) {
	t.Run("injects into html responses", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>page</body></html>"))
		}))
		defer backend.Close()

		p := NewProxyHandler(backend.URL, true, nil)
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "__botsenseLoaded") {
			t.Error("collector not injected into proxied HTML")
		}
	})

	t.Run("passes non-html through untouched", func(t *testing.T) {
		payload := []byte(`{"plain":"json"}`)
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(payload)
		}))
		defer backend.Close()

		p := NewProxyHandler(backend.URL, true, nil)
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api", nil))

		if !bytes.Equal(rec.Body.Bytes(), payload) {
			t.Errorf("body = %q, want untouched %q", rec.Body.String(), payload)
		}
	})

	t.Run("injection disabled passes html through", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>page</body></html>"))
		}))
		defer backend.Close()

		p := NewProxyHandler(backend.URL, false, nil)
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))

		if strings.Contains(rec.Body.String(), "<script>") {
			t.Error("collector injected with injection disabled")
		}
	})

	t.Run("handles gzipped html", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			_, _ = gz.Write([]byte("<html><body>compressed</body></html>"))
			_ = gz.Close()
		}))
		defer backend.Close()

		p := NewProxyHandler(backend.URL, true, nil)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/page", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		p.ServeHTTP(rec, req)

		gzr, err := gzip.NewReader(rec.Body)
		if err != nil {
			t.Fatalf("response is not gzipped: %v", err)
		}
		defer gzr.Close()
		html, err := io.ReadAll(gzr)
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		if !strings.Contains(string(html), "__botsenseLoaded") {
			t.Error("collector not injected into gzipped HTML")
		}
	})

	t.Run("unreachable backend is bad gateway", func(t *testing.T) {
		p := NewProxyHandler("http://127.0.0.1:1", false, nil)
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
	})

	t.Run("forwards query and headers", func(t *testing.T) {
		var gotQuery, gotHeader string
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			gotHeader = r.Header.Get("X-Custom")
		}))
		defer backend.Close()

		p := NewProxyHandler(backend.URL, false, nil)
		req := httptest.NewRequest(http.MethodGet, "/search?q=abc", nil)
		req.Header.Set("X-Custom", "v1")
		p.ServeHTTP(httptest.NewRecorder(), req)

		if gotQuery != "q=abc" {
			t.Errorf("forwarded query = %q, want q=abc", gotQuery)
		}
		if gotHeader != "v1" {
			t.Errorf("forwarded header = %q, want v1", gotHeader)
		}
	})
}

func TestMiddlewareRouter(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("proxied"))
	}))
	defer backend.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	var collected bool
	router := NewMiddlewareRouter(mux, backend.URL, false, nil,
		func(w http.ResponseWriter, r *http.Request) { collected = true })

	t.Run("tracking paths stay local", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Body.String() != "ok" {
			t.Errorf("body = %q, want ok", rec.Body.String())
		}
	})

	t.Run("signed posts anywhere are collection traffic", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/any/where", strings.NewReader("{}"))
		req.Header.Set(hmacHeader, "deadbeef")
		router.ServeHTTP(httptest.NewRecorder(), req)
		if !collected {
			t.Error("signed POST did not reach the collect handler")
		}
	})

	t.Run("everything else is proxied", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/product/1", nil))
		if rec.Body.String() != "proxied" {
			t.Errorf("body = %q, want proxied", rec.Body.String())
		}
	})
}

func TestNewMux(t *testing.T) {
	t.Run("serves tracking routes", func(t *testing.T) {
		h := NewMux(testEnv(t, nil))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
			t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
		}

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/collector.js", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("collector.js status = %d, want 200", rec.Code)
		}
	})

	t.Run("cors applies to the whole surface", func(t *testing.T) {
		h := NewMux(testEnv(t, nil))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/collect", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want 204", rec.Code)
		}
	})

	t.Run("invalid forward destination falls back with metrics intact", func(t *testing.T) {
		m := metrics.InitMetrics()
		env := testEnv(t, func(c *cfg.Config) {
			c.MiddlewareMode = true
			c.ForwardDestination = "http://bad host/"
		})
		env.Metrics = m
		h := NewMux(env)

		counter := m.HTTPRequests.WithLabelValues("/readyz", http.MethodGet, "200")
		before := testutil.ToFloat64(counter)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "ready" {
			t.Fatalf("readyz = %d %q, want local 200 ready", rec.Code, rec.Body.String())
		}
		if after := testutil.ToFloat64(counter); after != before+1 {
			t.Errorf("http request counter = %v, want %v", after, before+1)
		}
	})

	t.Run("middleware mode proxies unknown paths", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("site"))
		}))
		defer backend.Close()

		h := NewMux(testEnv(t, func(c *cfg.Config) {
			c.MiddlewareMode = true
			c.ForwardDestination = backend.URL
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/landing", nil))
		if rec.Body.String() != "site" {
			t.Errorf("body = %q, want proxied site", rec.Body.String())
		}

		// Tracking endpoints still resolve locally.
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Body.String() != "ok" {
			t.Errorf("healthz via middleware mode = %q, want ok", rec.Body.String())
		}
	})
}
