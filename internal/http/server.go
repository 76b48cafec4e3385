package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/botsense/botsense/internal/assets"
)

func durationMS(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

// ProxyHandler implements a reverse proxy for middleware mode
type ProxyHandler struct {
	destination     string
	client          *http.Client
	injectCollector bool
	hmacAuth        *HMACAuth
}

// NewProxyHandler creates a new proxy handler for the given destination
func NewProxyHandler(destination string, injectCollector bool, hmacAuth *HMACAuth) *ProxyHandler {
	return &ProxyHandler{
		destination:     destination,
		injectCollector: injectCollector,
		hmacAuth:        hmacAuth,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ServeHTTP proxies requests to the destination server
func (p *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	targetURL, err := url.Parse(p.destination)
	if err != nil {
		log.Printf("proxy: invalid destination URL: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	targetURL.Path = r.URL.Path
	targetURL.RawQuery = r.URL.RawQuery

	ctx, cancel := context.WithTimeout(r.Context(), 25*time.Second)
	defer cancel()

	proxyReq, err := http.NewRequestWithContext(ctx, r.Method, targetURL.String(), r.Body)
	if err != nil {
		log.Printf("proxy: failed to create request: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	for key, values := range r.Header {
		for _, value := range values {
			proxyReq.Header.Add(key, value)
		}
	}
	proxyReq.Host = targetURL.Host

	resp, err := p.client.Do(proxyReq)
	if err != nil {
		log.Printf("proxy: request to %s failed: %v", targetURL.String(), err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}

	if !p.injectCollector || !isHTMLContent(resp.Header.Get("Content-Type")) {
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			log.Printf("proxy: failed to copy response body: %v", err)
		}
		return
	}

	isGzipped := strings.Contains(strings.ToLower(resp.Header.Get("Content-Encoding")), "gzip")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("proxy: failed to read response body for collector injection: %v", err)
		w.WriteHeader(resp.StatusCode)
		return
	}

	htmlBody := body
	if isGzipped {
		gzReader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			log.Printf("proxy: failed to create gzip reader: %v", err)
			w.WriteHeader(resp.StatusCode)
			_, _ = w.Write(body)
			return
		}
		defer gzReader.Close()

		htmlBody, err = io.ReadAll(gzReader)
		if err != nil {
			log.Printf("proxy: failed to decompress gzipped body: %v", err)
			w.WriteHeader(resp.StatusCode)
			_, _ = w.Write(body)
			return
		}
	}

	modifiedBody := injectCollector(htmlBody, p.hmacAuth)

	finalBody := modifiedBody
	if isGzipped {
		var buf bytes.Buffer
		gzWriter := gzip.NewWriter(&buf)
		if _, err := gzWriter.Write(modifiedBody); err != nil {
			log.Printf("proxy: failed to write gzipped body: %v", err)
			w.WriteHeader(resp.StatusCode)
			return
		}
		if err := gzWriter.Close(); err != nil {
			log.Printf("proxy: failed to close gzip writer: %v", err)
			w.WriteHeader(resp.StatusCode)
			return
		}
		finalBody = buf.Bytes()
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(finalBody)))
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(finalBody); err != nil {
		log.Printf("proxy: failed to write modified response body: %v", err)
	}
}

// isHTMLContent checks if the content type indicates HTML (case-insensitive)
func isHTMLContent(contentType string) bool {
	if contentType == "" {
		return false
	}

	ct := strings.ToLower(strings.TrimSpace(contentType))

	return strings.Contains(ct, "text/html") ||
		strings.Contains(ct, "application/xhtml+xml") ||
		strings.Contains(ct, "application/xhtml")
}

// injectCollector inlines the behavior collector before the closing
// </body> tag. Inlining the whole script avoids ad-blocker detection on
// script src URLs.
func injectCollector(body []byte, hmacAuth *HMACAuth) []byte {
	html := string(body)

	var injectedContent string
	if hmacAuth != nil {
		injectedContent = fmt.Sprintf(`<script src="/hmac.js"></script>
<script>%s</script>`, string(assets.CollectorJS))
	} else {
		injectedContent = fmt.Sprintf(`<script>%s</script>`, string(assets.CollectorJS))
	}

	bodyCloseRegex := regexp.MustCompile(`(?i)</body>`)
	if bodyCloseRegex.MatchString(html) {
		return []byte(bodyCloseRegex.ReplaceAllString(html, injectedContent+"\n</body>"))
	}

	htmlCloseRegex := regexp.MustCompile(`(?i)</html>`)
	if htmlCloseRegex.MatchString(html) {
		return []byte(htmlCloseRegex.ReplaceAllString(html, injectedContent+"\n</html>"))
	}

	return bytes.Join([][]byte{body, []byte(injectedContent)}, []byte("\n"))
}

// MiddlewareRouter wraps the tracking mux and forwards unmatched
// requests to the proxied destination.
type MiddlewareRouter struct {
	trackingMux    *http.ServeMux
	proxy          *ProxyHandler
	collectHandler http.HandlerFunc
}

// NewMiddlewareRouter creates a router that handles tracking routes and
// forwards everything else to the destination
func NewMiddlewareRouter(trackingMux *http.ServeMux, destination string, injectCollector bool, hmacAuth *HMACAuth, collectHandler http.HandlerFunc) *MiddlewareRouter {
	return &MiddlewareRouter{
		trackingMux:    trackingMux,
		proxy:          NewProxyHandler(destination, injectCollector, hmacAuth),
		collectHandler: collectHandler,
	}
}

// ServeHTTP handles requests by first trying the tracking mux, then proxying
func (m *MiddlewareRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isTrackingPath(r.URL.Path) {
		m.trackingMux.ServeHTTP(w, r)
		return
	}

	// A signed POST to any path is collection traffic; routing it to
	// arbitrary URLs makes it harder to block.
	if r.Method == http.MethodPost && r.Header.Get(hmacHeader) != "" {
		m.collectHandler(w, r)
		return
	}

	m.proxy.ServeHTTP(w, r)
}

// isTrackingPath determines if a path belongs to the tracking server
func isTrackingPath(path string) bool {
	trackingPaths := []string{
		"/px.gif",
		"/collect",
		"/ws",
		"/session/start",
		"/session/stop",
		"/session/result",
		"/session/telemetry",
		"/healthz",
		"/readyz",
		"/metrics",
		"/hmac.js",
		"/hmac/public-key",
		"/collector.js",
	}
	for _, trackingPath := range trackingPaths {
		if path == trackingPath {
			return true
		}
	}
	return false
}

func NewMux(e Env) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", e.Healthz)
	mux.HandleFunc("/readyz", e.Readyz)
	mux.HandleFunc("/px.gif", e.Pixel)
	mux.HandleFunc("/collect", e.Collect)
	mux.HandleFunc("/ws", e.EventStream)

	mux.HandleFunc("/session/start", e.SessionStart)
	mux.HandleFunc("/session/stop", e.SessionStop)
	mux.HandleFunc("/session/result", e.SessionResult)
	mux.HandleFunc("/session/telemetry", e.SessionTelemetry)

	// HMAC authentication endpoints
	mux.HandleFunc("/hmac.js", e.HMACScript)
	mux.HandleFunc("/hmac/public-key", e.HMACPublicKey)

	// Collector JS distribution
	mux.HandleFunc("/collector.js", e.CollectorScript)

	// If middleware mode is enabled and we have a destination, wrap with proxy
	if e.Cfg.MiddlewareMode && e.Cfg.ForwardDestination != "" {
		if _, err := url.Parse(e.Cfg.ForwardDestination); err != nil {
			log.Printf("WARNING: Invalid FORWARD_DESTINATION URL: %v. Middleware mode disabled.", err)
			return RequestLogger(MetricsMiddleware(e.Metrics)(cors(mux)))
		}

		log.Printf("Middleware mode enabled, forwarding to: %s", e.Cfg.ForwardDestination)
		if e.Cfg.AutoInjectCollector {
			log.Printf("Auto collector injection enabled for HTML content")
		}
		router := NewMiddlewareRouter(mux, e.Cfg.ForwardDestination, e.Cfg.AutoInjectCollector, e.HMACAuth, e.Collect)
		return RequestLogger(MetricsMiddleware(e.Metrics)(cors(router)))
	}

	if e.Cfg.MiddlewareMode && e.Cfg.ForwardDestination == "" {
		log.Printf("WARNING: MIDDLEWARE_MODE=true but FORWARD_DESTINATION is empty. Middleware mode disabled.")
	}

	return RequestLogger(MetricsMiddleware(e.Metrics)(cors(mux)))
}
