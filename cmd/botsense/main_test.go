package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/botsense/botsense/internal/behavior"
	httpx "github.com/botsense/botsense/internal/http"
	"github.com/botsense/botsense/internal/indicator"
	"github.com/botsense/botsense/internal/ingest"
	"github.com/botsense/botsense/internal/metrics"
	"github.com/botsense/botsense/internal/session"
	"github.com/botsense/botsense/internal/sink"
	"github.com/botsense/botsense/pkg/config"
)

// Mock sink for testing
type mockSink struct {
	name     string
	results  []session.Result
	startErr error
	enqErr   error
	closeErr error
}

func (m *mockSink) Start(ctx context.Context) error { return m.startErr }

func (m *mockSink) Enqueue(res session.Result) error {
	if m.enqErr != nil {
		return m.enqErr
	}
	m.results = append(m.results, res)
	return nil
}

func (m *mockSink) Close() error { return m.closeErr }

func (m *mockSink) Name() string { return m.name }

func testResult(id, risk string) session.Result {
	return session.Result{
		SessionID:  id,
		Indicators: map[string]indicator.Indicator{},
		Summary:    indicator.Summary{RiskLevel: risk},
	}
}

// TestInitializeSinks tests sink initialization
func TestInitializeSinks(t *testing.T) {
	ctx := context.Background()

	oldPath := os.Getenv("LOG_PATH")
	defer os.Setenv("LOG_PATH", oldPath)
	os.Setenv("LOG_PATH", filepath.Join(t.TempDir(), "results.ndjson"))

	t.Run("log sink", func(t *testing.T) {
		sinks := initializeSinks(ctx, []string{"log"})
		if len(sinks) != 1 {
			t.Fatalf("expected 1 sink, got %d", len(sinks))
		}
		if sinks[0].Name() != "log" {
			t.Errorf("expected log sink, got %s", sinks[0].Name())
		}
		for _, s := range sinks {
			s.Close()
		}
	})

	t.Run("unknown output type", func(t *testing.T) {
		sinks := initializeSinks(ctx, []string{"unknown"})
		if len(sinks) != 0 {
			t.Errorf("expected 0 sinks for unknown type, got %d", len(sinks))
		}
	})

	t.Run("failed sink is dropped not fatal", func(t *testing.T) {
		// postgres without PG_DSN fails to start; log still comes up
		oldDSN := os.Getenv("PG_DSN")
		defer os.Setenv("PG_DSN", oldDSN)
		os.Unsetenv("PG_DSN")

		sinks := initializeSinks(ctx, []string{"postgres", "log"})
		if len(sinks) != 1 {
			t.Fatalf("expected 1 sink, got %d", len(sinks))
		}
		if sinks[0].Name() != "log" {
			t.Errorf("expected log sink to survive, got %s", sinks[0].Name())
		}
		for _, s := range sinks {
			s.Close()
		}
	})

	t.Run("empty outputs", func(t *testing.T) {
		if sinks := initializeSinks(ctx, nil); len(sinks) != 0 {
			t.Errorf("expected no sinks, got %d", len(sinks))
		}
	})
}

// TestInitializeHMACAuth tests HMAC authentication initialization
func TestInitializeHMACAuth(t *testing.T) {
	t.Run("no HMAC secret", func(t *testing.T) {
		auth := initializeHMACAuth(config.Config{HMACSecret: ""})
		if auth != nil {
			t.Error("expected nil auth when no HMAC secret configured")
		}
	})

	t.Run("with HMAC secret", func(t *testing.T) {
		auth := initializeHMACAuth(config.Config{HMACSecret: "secret", HMACRequired: true})
		if auth == nil {
			t.Fatal("expected auth handler with secret configured")
		}
		if auth.GetPublicKeyBase64() == "" {
			t.Error("expected derived public key")
		}
	})
}

// TestCreateCompleteFunc tests the completion fan-out
func TestCreateCompleteFunc(t *testing.T) {
	t.Run("delivers result to all sinks", func(t *testing.T) {
		mock1 := &mockSink{name: "sink1"}
		mock2 := &mockSink{name: "sink2"}
		complete := createCompleteFunc([]sink.Sink{mock1, mock2}, metrics.InitMetrics())

		complete(testResult("s-123", indicator.RiskHigh))

		if len(mock1.results) != 1 {
			t.Errorf("sink1: expected 1 result, got %d", len(mock1.results))
		}
		if len(mock2.results) != 1 {
			t.Errorf("sink2: expected 1 result, got %d", len(mock2.results))
		}
		if len(mock1.results) > 0 && mock1.results[0].SessionID != "s-123" {
			t.Errorf("sink1: session id = %q, want s-123", mock1.results[0].SessionID)
		}
	})

	t.Run("failing sink never blocks the others", func(t *testing.T) {
		failing := &mockSink{name: "failing-sink", enqErr: fmt.Errorf("enqueue failed")}
		working := &mockSink{name: "working-sink"}
		complete := createCompleteFunc([]sink.Sink{failing, working}, metrics.InitMetrics())

		complete(testResult("s-456", indicator.RiskLow))

		if len(working.results) != 1 {
			t.Error("working sink should receive the result despite the failing one")
		}
	})

	t.Run("no sinks no metrics", func(t *testing.T) {
		complete := createCompleteFunc(nil, nil)
		complete(testResult("s-789", indicator.RiskNone)) // must not panic
	})
}

// TestStartHTTPServer tests HTTP server initialization
func TestStartHTTPServer(t *testing.T) {
	cfg := config.Config{
		ServerAddr:      "127.0.0.1:0",
		SessionDuration: time.Second,
		Detection:       behavior.DefaultConfig(),
	}
	env := httpx.Env{
		Cfg:      cfg,
		Sessions: session.NewManager(cfg.Detection, cfg.SessionDuration),
		Metrics:  metrics.InitMetrics(),
		Tracker:  ingest.NewMemoryTracker(),
	}

	srv := startHTTPServer(cfg, env)
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("failed to shutdown server: %v", err)
	}
}

// TestPerformHealthCheck tests the health check probe
func TestPerformHealthCheck(t *testing.T) {
	splitURL := func(t *testing.T, rawURL string) (host, port string) {
		t.Helper()
		host, port, err := net.SplitHostPort(strings.TrimPrefix(rawURL, "http://"))
		if err != nil {
			t.Fatalf("split test server url: %v", err)
		}
		return host, port
	}

	t.Run("successful health check", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer ts.Close()

		host, port := splitURL(t, ts.URL)
		if err := performHealthCheck(host, port); err != nil {
			t.Errorf("health check should succeed: %v", err)
		}
	})

	t.Run("connection error", func(t *testing.T) {
		err := performHealthCheck("127.0.0.1", "1")
		if err == nil {
			t.Fatal("expected error when connecting to a closed port")
		}
		if !strings.Contains(err.Error(), "failed to connect") {
			t.Errorf("error should mention connection failure: %v", err)
		}
	})

	t.Run("non-200 status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		host, port := splitURL(t, ts.URL)
		err := performHealthCheck(host, port)
		if err == nil {
			t.Fatal("expected error for non-200 status")
		}
		if !strings.Contains(err.Error(), "status") {
			t.Errorf("error should mention status: %v", err)
		}
	})

	t.Run("wrong response body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("wrong"))
		}))
		defer ts.Close()

		host, port := splitURL(t, ts.URL)
		err := performHealthCheck(host, port)
		if err == nil {
			t.Fatal("expected error for wrong response body")
		}
		if !strings.Contains(err.Error(), "unexpected") {
			t.Errorf("error should mention unexpected body: %v", err)
		}
	})
}

// Test the shutdown sequence components without waiting for a signal
func TestShutdownComponents(t *testing.T) {
	t.Run("all components stop cleanly", func(t *testing.T) {
		srv := &http.Server{
			Addr:    "127.0.0.1:0",
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		}
		go srv.ListenAndServe()
		time.Sleep(50 * time.Millisecond)

		sessions := session.NewManager(behavior.DefaultConfig(), 10*time.Second)
		sessions.Start("open", 10*time.Second)

		mock1 := &mockSink{name: "test-sink"}
		sinks := []sink.Sink{mock1}

		done := make(chan bool, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(ctx)
			sessions.Shutdown()
			for _, s := range sinks {
				s.Close()
			}
			done <- true
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("shutdown took too long")
		}
	})

	t.Run("sink close error is tolerated", func(t *testing.T) {
		mockError := &mockSink{name: "error-sink", closeErr: fmt.Errorf("close error")}
		for _, s := range []sink.Sink{mockError} {
			if err := s.Close(); err == nil {
				t.Error("expected close error from mock")
			}
		}
	})
}

func TestDurationMSHelper(t *testing.T) {
	if got := durationMS(2500); got != 2500*time.Millisecond {
		t.Errorf("durationMS(2500) = %v, want 2.5s", got)
	}
}
