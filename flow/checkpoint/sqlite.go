package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists snapshots in a single-file SQLite database.
//
// Suited for development, tests (":memory:") and single-process
// deployments. WAL mode keeps readers unblocked while the engine
// writes; the connection pool is pinned to one connection because
// SQLite allows a single writer.
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (and migrates) the database at path. Use
// ":memory:" for an ephemeral store.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	store := &SQLiteStore[S]{db: db, path: path}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS thread_snapshots (
			thread_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			status TEXT NOT NULL,
			state TEXT NOT NULL,
			completed TEXT NOT NULL,
			suspension TEXT,
			failure TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			PRIMARY KEY (thread_id, seq)
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create thread_snapshots table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_snapshots_thread ON thread_snapshots(thread_id, seq)"); err != nil {
		return fmt.Errorf("failed to create idx_snapshots_thread: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_snapshots_status ON thread_snapshots(status)"); err != nil {
		return fmt.Errorf("failed to create idx_snapshots_status: %w", err)
	}
	return nil
}

// Snapshot upserts one snapshot row.
func (s *SQLiteStore[S]) Snapshot(ctx context.Context, snap Snapshot[S]) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	stateJSON, completedJSON, suspJSON, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO thread_snapshots (thread_id, seq, status, state, completed, suspension, failure, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id, seq) DO UPDATE SET
			status = excluded.status,
			state = excluded.state,
			completed = excluded.completed,
			suspension = excluded.suspension,
			failure = excluded.failure,
			created_at = excluded.created_at
	`
	_, err = s.db.ExecContext(ctx, query,
		snap.ThreadID, snap.Seq, snap.Status, stateJSON, completedJSON,
		suspJSON, snap.Failure, snap.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Latest returns the highest-seq snapshot for the thread.
func (s *SQLiteStore[S]) Latest(ctx context.Context, threadID string) (Snapshot[S], error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		var zero Snapshot[S]
		return zero, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `
		SELECT thread_id, seq, status, state, completed, suspension, failure, created_at
		FROM thread_snapshots
		WHERE thread_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, threadID)
	snap, err := scanSnapshot[S](row)
	if err == sql.ErrNoRows {
		var zero Snapshot[S]
		return zero, ErrNotFound
	}
	return snap, err
}

// History returns all snapshots for the thread in ascending seq order.
func (s *SQLiteStore[S]) History(ctx context.Context, threadID string) ([]Snapshot[S], error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `
		SELECT thread_id, seq, status, state, completed, suspension, failure, created_at
		FROM thread_snapshots
		WHERE thread_id = ?
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snaps, err := collectSnapshots[S](rows)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return snaps, nil
}

// AwaitingReview returns the latest snapshot of every suspended thread.
func (s *SQLiteStore[S]) AwaitingReview(ctx context.Context) ([]Snapshot[S], error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	// Latest row per thread, filtered to rows that carry a suspension.
	query := `
		SELECT t.thread_id, t.seq, t.status, t.state, t.completed, t.suspension, t.failure, t.created_at
		FROM thread_snapshots t
		JOIN (
			SELECT thread_id, MAX(seq) AS max_seq
			FROM thread_snapshots
			GROUP BY thread_id
		) latest ON t.thread_id = latest.thread_id AND t.seq = latest.max_seq
		WHERE t.suspension IS NOT NULL
		ORDER BY t.thread_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query suspended threads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectSnapshots[S](rows)
}

// Close closes the database connection. Double-close is a no-op.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the connection is alive.
func (s *SQLiteStore[S]) Ping(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

type rowScanner interface {
	Scan(dest ...any) error
}

func encodeSnapshot[S any](snap Snapshot[S]) (state, completed string, suspension any, err error) {
	stateJSON, err := json.Marshal(snap.State)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	completedJSON, err := json.Marshal(snap.Completed)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to marshal completed set: %w", err)
	}
	if snap.Suspension == nil {
		return string(stateJSON), string(completedJSON), nil, nil
	}
	suspJSON, err := json.Marshal(snap.Suspension)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to marshal suspension: %w", err)
	}
	return string(stateJSON), string(completedJSON), string(suspJSON), nil
}

func scanSnapshot[S any](row rowScanner) (Snapshot[S], error) {
	var (
		snap          Snapshot[S]
		stateJSON     string
		completedJSON string
		suspJSON      sql.NullString
		createdAt     string
	)
	err := row.Scan(&snap.ThreadID, &snap.Seq, &snap.Status, &stateJSON,
		&completedJSON, &suspJSON, &snap.Failure, &createdAt)
	if err != nil {
		var zero Snapshot[S]
		return zero, err
	}

	if err := json.Unmarshal([]byte(stateJSON), &snap.State); err != nil {
		var zero Snapshot[S]
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if err := json.Unmarshal([]byte(completedJSON), &snap.Completed); err != nil {
		var zero Snapshot[S]
		return zero, fmt.Errorf("failed to unmarshal completed set: %w", err)
	}
	if suspJSON.Valid {
		var susp Suspension
		if err := json.Unmarshal([]byte(suspJSON.String), &susp); err != nil {
			var zero Snapshot[S]
			return zero, fmt.Errorf("failed to unmarshal suspension: %w", err)
		}
		snap.Suspension = &susp
	}
	snap.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		var zero Snapshot[S]
		return zero, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return snap, nil
}

func collectSnapshots[S any](rows *sql.Rows) ([]Snapshot[S], error) {
	var snaps []Snapshot[S]
	for rows.Next() {
		snap, err := scanSnapshot[S](rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return snaps, nil
}
