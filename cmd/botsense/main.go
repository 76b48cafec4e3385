package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpx "github.com/botsense/botsense/internal/http"
	"github.com/botsense/botsense/internal/ingest"
	"github.com/botsense/botsense/internal/metrics"
	"github.com/botsense/botsense/internal/session"
	"github.com/botsense/botsense/internal/sink"
	"github.com/botsense/botsense/pkg/config"
)

// initializeSinks builds the configured result sinks. Unknown output
// names are logged and skipped; a sink that fails to start is dropped
// so the server can still run on the remaining ones.
func initializeSinks(ctx context.Context, outputs []string) []sink.Sink {
	var sinks []sink.Sink
	for _, out := range outputs {
		var s sink.Sink
		switch out {
		case "log":
			s = sink.NewLogSink()
		case "kafka":
			s = sink.NewKafkaSinkFromEnv()
		case "postgres":
			s = sink.NewPGSinkFromEnv()
		default:
			log.Printf("unknown output %q, skipping", out)
			continue
		}
		if err := s.Start(ctx); err != nil {
			log.Printf("sink %s failed to start: %v", s.Name(), err)
			continue
		}
		sinks = append(sinks, s)
	}
	return sinks
}

// initializeHMACAuth returns nil when no secret is configured, which
// disables collect-payload signing entirely.
func initializeHMACAuth(cfg config.Config) *httpx.HMACAuth {
	if cfg.HMACSecret == "" {
		return nil
	}
	return httpx.NewHMACAuth(cfg.HMACSecret, "", cfg.HMACRequired)
}

// createCompleteFunc fans a finished session result out to every sink.
// A failing sink never blocks the others.
func createCompleteFunc(sinks []sink.Sink, m *metrics.Metrics) func(session.Result) {
	return func(res session.Result) {
		if m != nil {
			m.ObserveSessionDuration(durationMS(res.CollectionDurationMS))
		}
		for _, s := range sinks {
			if err := s.Enqueue(res); err != nil {
				log.Printf("sink %s enqueue failed: %v", s.Name(), err)
				if m != nil {
					m.IncrementSinkErrors(s.Name(), "enqueue")
				}
			}
		}
	}
}

func durationMS(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

func startHTTPServer(cfg config.Config, env httpx.Env) *http.Server {
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           httpx.NewMux(env),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("botsense listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()
	return srv
}

// performHealthCheck probes /healthz on the given host/port. Used by
// container health checks via --health-check.
func performHealthCheck(host, port string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	url := fmt.Sprintf("http://%s/healthz", net.JoinHostPort(host, port))
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if string(body) != "ok" {
		return fmt.Errorf("unexpected response body %q", string(body))
	}
	return nil
}

func waitForShutdown(srv *http.Server, metricsServer *metrics.Server, sessions *session.Manager, sinks []sink.Sink) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	sessions.Shutdown()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Printf("metrics shutdown: %v", err)
		}
	}
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Printf("sink %s close: %v", s.Name(), err)
		}
	}
}

func main() {
	testMode := flag.Bool("test-mode", false, "replay synthetic human and automated sessions through the engine, then exit")
	healthCheck := flag.Bool("health-check", false, "probe the running server's /healthz and exit")
	flag.Parse()

	cfg := config.Load()

	if *healthCheck {
		host, port, err := net.SplitHostPort(cfg.ServerAddr)
		if err != nil {
			log.Fatalf("invalid SERVER_ADDR: %v", err)
		}
		if host == "" {
			host = "127.0.0.1"
		}
		if err := performHealthCheck(host, port); err != nil {
			log.Fatalf("health check failed: %v", err)
		}
		fmt.Println("ok")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.InitMetrics()

	sinks := initializeSinks(ctx, cfg.Outputs)
	onComplete := createCompleteFunc(sinks, appMetrics)

	sessions := session.NewManager(cfg.Detection, cfg.SessionDuration,
		session.WithOnComplete(onComplete),
		session.WithActiveGauge(appMetrics.SetActiveSessions),
		session.WithManagerDetectionHooks(
			appMetrics.IncrementIndicatorsEmitted,
			appMetrics.IncrementDetectorFailures,
		),
	)

	if *testMode {
		runTestMode(sessions, onComplete)
		for _, s := range sinks {
			_ = s.Close()
		}
		return
	}

	metricsCfg := metrics.LoadConfig()
	var metricsServer *metrics.Server
	if metricsCfg.Enabled {
		metricsServer = metrics.NewServer(metricsCfg)
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}

	env := httpx.Env{
		Cfg:      cfg,
		Sessions: sessions,
		Metrics:  appMetrics,
		HMACAuth: initializeHMACAuth(cfg),
		Tracker:  ingest.NewMemoryTracker(),
	}

	srv := startHTTPServer(cfg, env)

	// reap completed sessions so the manager map stays bounded
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions.Sweep()
			}
		}
	}()

	waitForShutdown(srv, metricsServer, sessions, sinks)
}
