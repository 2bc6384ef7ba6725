// Package recording persists hitwire runs to SQLite so latency samples and
// message histories can be reported on after the process exits.
package recording

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/abdul-hamid-achik/hitwire/packages/latency"
	"github.com/abdul-hamid-achik/hitwire/packages/ws"
)

// ErrRunNotFound is returned when a run ID is unknown
var ErrRunNotFound = errors.New("recording: run not found")

// RunKind tells what produced a run
type RunKind string

const (
	KindProbe   RunKind = "probe"
	KindSession RunKind = "session"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	target      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER
);
CREATE TABLE IF NOT EXISTS samples (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	status_code INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS messages (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	message_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	direction   TEXT NOT NULL,
	payload     BLOB,
	size_bytes  INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Run is a recorded probe or session
type Run struct {
	ID         string
	Kind       RunKind
	Target     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is open
}

// QueryResult represents the result of an ad hoc query
type QueryResult struct {
	Columns []string
	Rows    []map[string]interface{}
}

// Store is a SQLite backed recording store
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
	now          func() time.Time
}

// Open opens or creates a store. Supported formats:
// - sqlite://path/to/db.sqlite
// - sqlite:./runs.db
// - ./runs.db
// - :memory:
func Open(connectionString string) (*Store, error) {
	dsn, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases shared and serialises writers
	db.SetMaxOpenConns(1)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:           db,
		queryTimeout: 30 * time.Second,
		now:          time.Now,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// CreateRun starts a new run
func (s *Store) CreateRun(ctx context.Context, kind RunKind, target string) (Run, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	run := Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Target:    target,
		StartedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, target, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.Target, run.StartedAt.UnixNano())
	if err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// FinishRun stamps the run's finish time
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE runs SET finished_at = ? WHERE id = ?`, s.now().UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// SaveSamples appends latency samples to a run
func (s *Store) SaveSamples(ctx context.Context, runID string, samples []latency.Sample) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		next, err := nextSeq(ctx, tx, "samples", runID)
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO samples (run_id, seq, duration_ns, status_code, recorded_at) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, sample := range samples {
			if _, err := stmt.ExecContext(ctx, runID, next+i, int64(sample.Duration), sample.StatusCode, sample.Timestamp.UnixNano()); err != nil {
				return fmt.Errorf("insert sample %d: %w", i, err)
			}
		}
		return nil
	})
}

// SaveMessages appends session messages to a run
func (s *Store) SaveMessages(ctx context.Context, runID string, messages []ws.Message) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		next, err := nextSeq(ctx, tx, "messages", runID)
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO messages (run_id, seq, message_id, kind, direction, payload, size_bytes, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, m := range messages {
			if _, err := stmt.ExecContext(ctx, runID, next+i, m.ID, string(m.Kind), string(m.Direction),
				m.Payload, m.SizeBytes, m.Timestamp.UnixNano()); err != nil {
				return fmt.Errorf("insert message %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if isForeignKeyError(err) {
			return ErrRunNotFound
		}
		return err
	}
	return tx.Commit()
}

func isForeignKeyError(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func nextSeq(ctx context.Context, tx *sql.Tx, table, runID string) (int, error) {
	var next int
	// table is one of two constants
	err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq) + 1, 0) FROM "+table+" WHERE run_id = ?", runID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("read %s sequence: %w", table, err)
	}
	return next, nil
}

// Run loads a run by ID
func (s *Store) Run(ctx context.Context, runID string) (Run, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT id, kind, target, started_at, finished_at FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// Runs lists runs, newest first
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, target, started_at, finished_at FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run      Run
		kind     string
		started  int64
		finished sql.NullInt64
	)
	if err := row.Scan(&run.ID, &kind, &run.Target, &started, &finished); err != nil {
		return Run{}, err
	}
	run.Kind = RunKind(kind)
	run.StartedAt = time.Unix(0, started)
	if finished.Valid {
		run.FinishedAt = time.Unix(0, finished.Int64)
	}
	return run, nil
}

// Samples loads a run's samples in recording order
func (s *Store) Samples(ctx context.Context, runID string) ([]latency.Sample, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT duration_ns, status_code, recorded_at FROM samples WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	defer rows.Close()

	var samples []latency.Sample
	for rows.Next() {
		var d, ts int64
		var sample latency.Sample
		if err := rows.Scan(&d, &sample.StatusCode, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		sample.Duration = time.Duration(d)
		sample.Timestamp = time.Unix(0, ts)
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// Messages loads a run's messages in recording order
func (s *Store) Messages(ctx context.Context, runID string) ([]ws.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, kind, direction, payload, size_bytes, recorded_at FROM messages WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var messages []ws.Message
	for rows.Next() {
		var (
			m               ws.Message
			kind, direction string
			ts              int64
		)
		if err := rows.Scan(&m.ID, &kind, &direction, &m.Payload, &m.SizeBytes, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m.Kind = ws.MessageKind(kind)
		m.Direction = ws.Direction(direction)
		m.Timestamp = time.Unix(0, ts)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Tracker replays a run's samples into a fresh tracker for reporting
func (s *Store) Tracker(ctx context.Context, runID string) (*latency.Tracker, error) {
	samples, err := s.Samples(ctx, runID)
	if err != nil {
		return nil, err
	}
	tracker := latency.NewTracker()
	for _, sample := range samples {
		tracker.Record(sample.Duration, sample.StatusCode)
	}
	return tracker, nil
}

// Query executes a read-only SQL query and returns the result
func (s *Store) Query(ctx context.Context, query string, args ...any) (*QueryResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := &QueryResult{
		Columns: columns,
		Rows:    make([]map[string]interface{}, 0),
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			val := values[i]
			// Convert []byte to string for better handling
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return result, nil
}

func parseConnectionString(connStr string) (string, error) {
	connStr = strings.TrimSpace(connStr)

	switch {
	case connStr == "":
		return "", errors.New("recording: empty connection string")
	case strings.HasPrefix(connStr, "sqlite://"):
		return strings.TrimPrefix(connStr, "sqlite://"), nil
	case strings.HasPrefix(connStr, "sqlite:"):
		return strings.TrimPrefix(connStr, "sqlite:"), nil
	case strings.Contains(connStr, "://"):
		scheme, _, _ := strings.Cut(connStr, "://")
		return "", fmt.Errorf("unsupported database scheme: %s", scheme)
	default:
		return connStr, nil
	}
}
