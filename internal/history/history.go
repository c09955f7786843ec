// Package history persists completed measurement runs to a local
// SQLite database so past estimates can be compared across runs.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	started_at    INTEGER NOT NULL,
	target        TEXT NOT NULL,
	probe_size    INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL,
	estimate_bps  REAL NOT NULL,
	loss_ratio    REAL NOT NULL,
	inconclusive  INTEGER NOT NULL,
	packets_sent  INTEGER NOT NULL,
	packets_recv  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// Run is one persisted measurement run.
type Run struct {
	ID                  string
	StartedAt           time.Time
	Target              string
	ProbeSize           int
	Duration            time.Duration
	EstimateBytesPerSec float64
	LossRatio           float64
	Inconclusive        bool
	PacketsSent         uint64
	PacketsRecv         uint64
}

// Store wraps the runs database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts one completed run.
func (s *Store) Record(run Run) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, target, probe_size, duration_ms,
			estimate_bps, loss_ratio, inconclusive, packets_sent, packets_recv)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UnixMilli(),
		run.Target,
		run.ProbeSize,
		run.Duration.Milliseconds(),
		run.EstimateBytesPerSec,
		run.LossRatio,
		boolToInt(run.Inconclusive),
		int64(run.PacketsSent),
		int64(run.PacketsRecv),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, started_at, target, probe_size, duration_ms,
			estimate_bps, loss_ratio, inconclusive, packets_sent, packets_recv
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedMs, durationMs, inconclusive, sent, recv int64
		if err := rows.Scan(&run.ID, &startedMs, &run.Target, &run.ProbeSize,
			&durationMs, &run.EstimateBytesPerSec, &run.LossRatio,
			&inconclusive, &sent, &recv); err != nil {
			return nil, err
		}
		run.StartedAt = time.UnixMilli(startedMs)
		run.Duration = time.Duration(durationMs) * time.Millisecond
		run.Inconclusive = inconclusive != 0
		run.PacketsSent = uint64(sent)
		run.PacketsRecv = uint64(recv)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
