// Package recoverylog keeps an additive, diagnostic-only ledger of
// orchestrator runs in a local SQLite database, adapted from the project's
// internal/db connection helper. Nothing here feeds back into publication
// decisions: if the database is unavailable the orchestrator logs a
// warning and keeps going.
package recoverylog

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/clariah/quadsync/internal/pathutil"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	sealed_count INTEGER NOT NULL,
	open_tail_delta INTEGER NOT NULL,
	graphs_processed INTEGER NOT NULL,
	aborted INTEGER NOT NULL,
	error TEXT
);
`

// Ledger records completed orchestrator runs for later inspection; it is
// never consulted to decide what to publish.
type Ledger struct {
	db *sqlx.DB
}

// Open connects to (creating if necessary) a SQLite database at path.
func Open(path string) (*Ledger, error) {
	if err := pathutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("ensure parent directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to recovery log: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create recovery log schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close releases the underlying connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RunRecord is one completed orchestrator pass.
type RunRecord struct {
	StartedAt       time.Time
	FinishedAt      time.Time
	SealedCount     int
	OpenTailDelta   int
	GraphsProcessed int
	Aborted         bool
	Error           string
}

// Record appends one run to the ledger.
func (l *Ledger) Record(r RunRecord) error {
	_, err := l.db.Exec(
		`INSERT INTO runs (started_at, finished_at, sealed_count, open_tail_delta, graphs_processed, aborted, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt.UTC().Format(time.RFC3339),
		r.FinishedAt.UTC().Format(time.RFC3339),
		r.SealedCount,
		r.OpenTailDelta,
		r.GraphsProcessed,
		boolToInt(r.Aborted),
		r.Error,
	)
	return err
}

// Recent returns the n most recently recorded runs, newest first.
func (l *Ledger) Recent(n int) ([]RunRecord, error) {
	rows, err := l.db.Queryx(
		`SELECT started_at, finished_at, sealed_count, open_tail_delta, graphs_processed, aborted, error
		 FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			startedAt, finishedAt, errMsg string
			sealed, delta, graphs, aborted int
		)
		if err := rows.Scan(&startedAt, &finishedAt, &sealed, &delta, &graphs, &aborted, &errMsg); err != nil {
			return nil, err
		}
		started, _ := time.Parse(time.RFC3339, startedAt)
		finished, _ := time.Parse(time.RFC3339, finishedAt)
		out = append(out, RunRecord{
			StartedAt: started, FinishedAt: finished,
			SealedCount: sealed, OpenTailDelta: delta, GraphsProcessed: graphs,
			Aborted: aborted != 0, Error: errMsg,
		})
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
