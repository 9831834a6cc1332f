// Package harvest implements the harvester (one adapter per external
// source), its persistent progress bookkeeping, and the local scanner.
// State is kept in a small dedicated SQLite database (harvest_state.db),
// separate from the knowledge store so run bookkeeping never contends
// with document writes.
package harvest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Status is a harvest run's lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Progress is one source's persisted harvest bookkeeping: its paging
// cursor (OpenAlex/Crossref) or continuation token (Wikipedia), running
// counters, batch timing, and lifecycle status. The cursor is opaque and
// stored verbatim; resume is safe only as long as it is never
// reinterpreted.
type Progress struct {
	Source        string
	Cursor        string
	Offset        int
	TotalFetched  int
	TotalInserted int
	TotalErrors   int
	Target        int
	Status        Status
	LastError     string
	LastFile      string // local scanner resume marker
	LastBatchSize int
	StartedAt     time.Time
	LastBatchAt   time.Time
	UpdatedAt     time.Time
	Extra         string // free-form JSON
}

// Speed reports records fetched per second since StartedAt, 0 when the
// run hasn't started or hasn't fetched anything yet.
func (p Progress) Speed() float64 {
	if p.StartedAt.IsZero() || p.TotalFetched == 0 {
		return 0
	}
	elapsed := p.LastBatchAt.Sub(p.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.TotalFetched) / elapsed
}

// ETA estimates time remaining to Target at the current Speed, 0 when it
// cannot be computed.
func (p Progress) ETA() time.Duration {
	speed := p.Speed()
	if speed <= 0 || p.Target <= p.TotalFetched {
		return 0
	}
	return time.Duration(float64(p.Target-p.TotalFetched)/speed) * time.Second
}

// StateDB is the Harvest State store: a short-lived-connection-per-call
// SQLite database separate from the Distillation Store, so harvest
// bookkeeping never contends with document writes.
type StateDB struct {
	path string
}

// OpenState opens (creating if needed) the harvest state database at path.
func OpenState(path string) (*StateDB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("harvest: creating state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("harvest: opening state db: %w", err)
	}
	defer db.Close()
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("harvest: applying state schema: %w", err)
	}
	return &StateDB{path: path}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS harvest_progress (
	source          TEXT PRIMARY KEY,
	cursor          TEXT NOT NULL DEFAULT '',
	offset          INTEGER NOT NULL DEFAULT 0,
	total_fetched   INTEGER NOT NULL DEFAULT 0,
	total_inserted  INTEGER NOT NULL DEFAULT 0,
	total_errors    INTEGER NOT NULL DEFAULT 0,
	target          INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'idle',
	last_error      TEXT NOT NULL DEFAULT '',
	last_file       TEXT NOT NULL DEFAULT '',
	last_batch_size INTEGER NOT NULL DEFAULT 0,
	started_at      DATETIME,
	last_batch_at   DATETIME,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	extra           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS harvest_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	source     TEXT NOT NULL,
	event      TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func (s *StateDB) open() (*sql.DB, error) {
	return sql.Open("sqlite3", s.path+"?_journal_mode=WAL&_busy_timeout=30000")
}

// Load reads a source's Progress, returning a fresh zero-value Progress
// (status paused, empty cursor) if none exists yet.
func (s *StateDB) Load(ctx context.Context, source string) (Progress, error) {
	db, err := s.open()
	if err != nil {
		return Progress{}, err
	}
	defer db.Close()

	p := Progress{Source: source, Status: StatusIdle}
	row := db.QueryRowContext(ctx, `
		SELECT cursor, offset, total_fetched, total_inserted, total_errors, target, status,
			last_error, last_file, last_batch_size, started_at, last_batch_at, updated_at, extra
		FROM harvest_progress WHERE source = ?`, source)
	var startedAt, lastBatchAt, updatedAt sql.NullString
	err = row.Scan(&p.Cursor, &p.Offset, &p.TotalFetched, &p.TotalInserted, &p.TotalErrors, &p.Target,
		&p.Status, &p.LastError, &p.LastFile, &p.LastBatchSize, &startedAt, &lastBatchAt, &updatedAt, &p.Extra)
	if err == sql.ErrNoRows {
		return p, nil
	}
	if err != nil {
		return Progress{}, fmt.Errorf("harvest: loading progress for %s: %w", source, err)
	}
	p.StartedAt = parseStateTime(startedAt)
	p.LastBatchAt = parseStateTime(lastBatchAt)
	p.UpdatedAt = parseStateTime(updatedAt)
	return p, nil
}

func parseStateTime(v sql.NullString) time.Time {
	if !v.Valid || v.String == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, v.String); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Save persists p, recording a "progress_saved" event in the same
// connection lifetime.
func (s *StateDB) Save(ctx context.Context, p Progress) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `
		INSERT INTO harvest_progress (source, cursor, offset, total_fetched, total_inserted, total_errors,
			target, status, last_error, last_file, last_batch_size, started_at, last_batch_at, updated_at, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, ?)
		ON CONFLICT(source) DO UPDATE SET
			cursor = excluded.cursor,
			offset = excluded.offset,
			total_fetched = excluded.total_fetched,
			total_inserted = excluded.total_inserted,
			total_errors = excluded.total_errors,
			target = excluded.target,
			status = excluded.status,
			last_error = excluded.last_error,
			last_file = excluded.last_file,
			last_batch_size = excluded.last_batch_size,
			started_at = excluded.started_at,
			last_batch_at = excluded.last_batch_at,
			updated_at = CURRENT_TIMESTAMP,
			extra = excluded.extra`,
		p.Source, p.Cursor, p.Offset, p.TotalFetched, p.TotalInserted, p.TotalErrors,
		p.Target, p.Status, p.LastError, p.LastFile, p.LastBatchSize,
		stateTimeArg(p.StartedAt), stateTimeArg(p.LastBatchAt), p.Extra)
	if err != nil {
		return fmt.Errorf("harvest: saving progress for %s: %w", p.Source, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO harvest_events (source, event, detail) VALUES (?, 'progress_saved', ?)`,
		p.Source, fmt.Sprintf("fetched=%d inserted=%d status=%s", p.TotalFetched, p.TotalInserted, p.Status))
	if err != nil {
		slog.Warn("harvest: failed to record progress event", "source", p.Source, "error", err)
	}
	return nil
}

// stateTimeArg stores zero times as NULL rather than Go's zero-time
// string so Load round-trips them cleanly.
func stateTimeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// LogEvent records a free-form event line against a source, for status
// reporting and post-mortem debugging.
func (s *StateDB) LogEvent(ctx context.Context, source, event, detail string) {
	db, err := s.open()
	if err != nil {
		slog.Warn("harvest: could not open state db to log event", "error", err)
		return
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx,
		`INSERT INTO harvest_events (source, event, detail) VALUES (?, ?, ?)`,
		source, event, detail); err != nil {
		slog.Warn("harvest: failed to log event", "source", source, "event", event, "error", err)
	}
}

// AllProgress returns every source's current Progress, for the `status`
// CLI subcommand.
func (s *StateDB) AllProgress(ctx context.Context) ([]Progress, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT source, cursor, offset, total_fetched, total_inserted, total_errors, target, status,
			last_error, last_file, last_batch_size, started_at, last_batch_at, updated_at, extra
		FROM harvest_progress ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("harvest: listing progress: %w", err)
	}
	defer rows.Close()

	var out []Progress
	for rows.Next() {
		var p Progress
		var startedAt, lastBatchAt, updatedAt sql.NullString
		if err := rows.Scan(&p.Source, &p.Cursor, &p.Offset, &p.TotalFetched, &p.TotalInserted, &p.TotalErrors,
			&p.Target, &p.Status, &p.LastError, &p.LastFile, &p.LastBatchSize,
			&startedAt, &lastBatchAt, &updatedAt, &p.Extra); err != nil {
			return nil, err
		}
		p.StartedAt = parseStateTime(startedAt)
		p.LastBatchAt = parseStateTime(lastBatchAt)
		p.UpdatedAt = parseStateTime(updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}
