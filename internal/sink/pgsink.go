package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/botsense/botsense/internal/session"
)

// PGSink batches session results into a Postgres table. One row per
// completed session; the full result rides along as a JSONB payload so
// downstream queries keep working when the schema grows.
type PGSink struct {
	DSN       string
	Table     string
	BatchSize int
	FlushMS   int

	db     *sql.DB
	mu     sync.Mutex
	batch  []session.Result
	cancel context.CancelFunc
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateTableName rejects anything that could smuggle SQL through the
// identifier position, which placeholders cannot protect.
func validateTableName(name string) error {
	if !tableNameRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// NewPGSinkFromEnv creates a PGSink from environment variables
func NewPGSinkFromEnv() *PGSink {
	return &PGSink{
		DSN:       os.Getenv("PG_DSN"),
		Table:     getEnvOr("PG_TABLE", "session_results"),
		BatchSize: getIntEnv("PG_BATCH_SIZE", 50),
		FlushMS:   getIntEnv("PG_FLUSH_MS", 1000),
	}
}

// NewPGSink creates a PGSink with an explicit DSN
func NewPGSink(dsn string) *PGSink {
	return &PGSink{DSN: dsn, Table: "session_results", BatchSize: 50, FlushMS: 1000}
}

func (s *PGSink) Start(ctx context.Context) error {
	if s.DSN == "" {
		return fmt.Errorf("pg sink: PG_DSN not set")
	}
	if err := validateTableName(s.Table); err != nil {
		return fmt.Errorf("pg sink: %w", err)
	}

	db, err := sql.Open("postgres", s.DSN)
	if err != nil {
		return fmt.Errorf("pg sink: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("pg sink: ping: %w", err)
	}
	s.db = db

	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return err
	}

	flushCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.flushRoutine(flushCtx)

	return nil
}

// StartWithDB wires an existing database handle, used by tests.
func (s *PGSink) StartWithDB(ctx context.Context, db *sql.DB) error {
	if err := validateTableName(s.Table); err != nil {
		return fmt.Errorf("pg sink: %w", err)
	}
	s.db = db
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	flushCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.flushRoutine(flushCtx)
	return nil
}

func (s *PGSink) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		detected_count INT NOT NULL,
		max_confidence DOUBLE PRECISION NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.Table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("pg sink: create table: %w", err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_session_idx ON %s (session_id)`,
		s.Table, s.Table)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("pg sink: create index: %w", err)
	}
	return nil
}

func (s *PGSink) Enqueue(res session.Result) error {
	s.mu.Lock()
	s.batch = append(s.batch, res)
	full := len(s.batch) >= s.BatchSize
	s.mu.Unlock()

	if full {
		return s.Flush(context.Background())
	}
	return nil
}

// Flush writes the pending batch in one multi-row insert. On error the
// batch is kept for the next attempt.
func (s *PGSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()

	query := fmt.Sprintf(
		`INSERT INTO %s (session_id, risk_level, detected_count, max_confidence, payload) VALUES `,
		s.Table)
	args := make([]any, 0, len(batch)*5)
	for i, res := range batch {
		if i > 0 {
			query += ", "
		}
		base := i * 5
		query += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		payload, err := json.Marshal(res)
		if err != nil {
			payload = []byte("{}")
		}
		args = append(args, res.SessionID, res.Summary.RiskLevel,
			res.Summary.DetectedCount, res.Summary.MaxConfidence, payload)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.mu.Lock()
		s.batch = append(batch, s.batch...)
		s.mu.Unlock()
		return fmt.Errorf("pg sink: insert: %w", err)
	}
	return nil
}

func (s *PGSink) flushRoutine(ctx context.Context) {
	interval := time.Duration(s.FlushMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				log.Printf("pg sink: flush: %v", err)
			}
		}
	}
}

func (s *PGSink) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.db == nil {
		return nil
	}
	if err := s.Flush(context.Background()); err != nil {
		log.Printf("pg sink: final flush: %v", err)
	}
	return s.db.Close()
}

func (s *PGSink) Name() string { return "postgres" }

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
