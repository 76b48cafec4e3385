package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/botsense/botsense/internal/session"
)

// LogSink appends one NDJSON line per completed session, to a file or
// stdout. It is the default sink and the one test-mode runs use.
type LogSink struct {
	dst string
	mu  sync.Mutex
	f   *os.File
}

// NewLogSink reads LOG_PATH; "stdout" streams to standard output.
func NewLogSink() *LogSink {
	return &LogSink{dst: getEnvOr("LOG_PATH", "results.ndjson")}
}

func (s *LogSink) Start(ctx context.Context) error {
	if s.dst == "stdout" {
		return nil
	}
	f, err := os.OpenFile(s.dst, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("log sink: open %s: %w", s.dst, err)
	}
	s.f = f
	return nil
}

func (s *LogSink) Enqueue(res session.Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("log sink: marshal: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.f
	if w == nil {
		w = os.Stdout
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("log sink: write: %w", err)
	}
	return nil
}

func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *LogSink) Name() string { return "log" }
