package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore persists snapshots in MySQL for multi-process
// deployments where several workers share one checkpoint database.
//
// The DSN must enable parseTime, e.g.
// "user:pass@tcp(localhost:3306)/storyflow?parseTime=true".
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore opens a connection pool against dsn and migrates the
// snapshot table.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	store := &MySQLStore[S]{db: db}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *MySQLStore[S]) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS thread_snapshots (
			thread_id VARCHAR(64) NOT NULL,
			seq INT NOT NULL,
			status VARCHAR(32) NOT NULL,
			state MEDIUMTEXT NOT NULL,
			completed TEXT NOT NULL,
			suspension TEXT,
			failure TEXT,
			created_at VARCHAR(64) NOT NULL,
			PRIMARY KEY (thread_id, seq),
			INDEX idx_snapshots_status (status)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create thread_snapshots table: %w", err)
	}
	return nil
}

// Snapshot upserts one snapshot row.
func (s *MySQLStore[S]) Snapshot(ctx context.Context, snap Snapshot[S]) error {
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
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			state = VALUES(state),
			completed = VALUES(completed),
			suspension = VALUES(suspension),
			failure = VALUES(failure),
			created_at = VALUES(created_at)
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
func (s *MySQLStore[S]) Latest(ctx context.Context, threadID string) (Snapshot[S], error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		var zero Snapshot[S]
		return zero, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `
		SELECT thread_id, seq, status, state, completed, suspension, IFNULL(failure, ''), created_at
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
func (s *MySQLStore[S]) History(ctx context.Context, threadID string) ([]Snapshot[S], error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `
		SELECT thread_id, seq, status, state, completed, suspension, IFNULL(failure, ''), created_at
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
func (s *MySQLStore[S]) AwaitingReview(ctx context.Context) ([]Snapshot[S], error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `
		SELECT t.thread_id, t.seq, t.status, t.state, t.completed, t.suspension, IFNULL(t.failure, ''), t.created_at
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

// Close closes the connection pool. Double-close is a no-op.
func (s *MySQLStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *MySQLStore[S]) Ping(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()
	return s.db.PingContext(ctx)
}
