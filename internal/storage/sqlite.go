package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazz-dev/checkhttp/internal/checker"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    check_name  TEXT    NOT NULL,
    state       TEXT    NOT NULL CHECK(state IN ('OK', 'WARNING', 'CRITICAL', 'UNKNOWN')),
    summary     TEXT    NOT NULL,
    details     TEXT    NOT NULL DEFAULT '',
    perfdata    TEXT    NOT NULL DEFAULT '',
    response_ms INTEGER NOT NULL,
    checked_at  TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_check ON runs(check_name);
CREATE INDEX IF NOT EXISTS idx_runs_checked_at ON runs(checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_check_checked ON runs(check_name, checked_at DESC);
`

const runColumns = `id, check_name, state, summary, details, perfdata, response_ms, checked_at`

// Run is a stored check run.
type Run struct {
	ID         int64     `json:"id"`
	CheckName  string    `json:"check"`
	State      string    `json:"state"`
	Summary    string    `json:"summary"`
	Details    string    `json:"details"`
	Perfdata   string    `json:"perfdata"`
	ResponseMs int64     `json:"response_ms"`
	CheckedAt  time.Time `json:"checked_at"`
}

// DB wraps a SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=5000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertRun persists a check run.
func (d *DB) InsertRun(ctx context.Context, r checker.Result) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO runs (check_name, state, summary, details, perfdata, response_ms, checked_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.CheckName,
		r.State.String(),
		r.Report.Headline(),
		r.Report.DetailsString(),
		r.Report.PerfdataString(),
		r.ResponseTime.Milliseconds(),
		r.CheckedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting run for %q: %w", r.CheckName, err)
	}
	return nil
}

// LatestRun returns the most recent run of the given check, or nil if none.
func (d *DB) LatestRun(ctx context.Context, name string) (*Run, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE check_name = ? ORDER BY checked_at DESC, id DESC LIMIT 1`,
		name,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest run for %q: %w", name, err)
	}
	return r, nil
}

// History returns paginated runs of a check, newest first, plus the total count.
func (d *DB) History(ctx context.Context, name string, limit, offset int) ([]Run, int, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE check_name = ?`, name,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting runs for %q: %w", name, err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE check_name = ? ORDER BY checked_at DESC, id DESC LIMIT ? OFFSET ?`,
		name, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history for %q: %w", name, err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// AllLatest returns the most recent run of each check.
func (d *DB) AllLatest(ctx context.Context) ([]Run, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id IN (
			SELECT MAX(id) FROM runs GROUP BY check_name
		)
		ORDER BY check_name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying all latest: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// OkPercent returns the percentage of OK runs among the last N runs of a check.
func (d *DB) OkPercent(ctx context.Context, name string, last int) (float64, error) {
	var total int
	var okCount sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(CASE WHEN state = 'OK' THEN 1 ELSE 0 END)
		FROM (
			SELECT state FROM runs WHERE check_name = ? ORDER BY checked_at DESC, id DESC LIMIT ?
		)
	`, name, last).Scan(&total, &okCount)
	if err != nil {
		return 0, fmt.Errorf("calculating ok percentage for %q: %w", name, err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(okCount.Int64) / float64(total) * 100, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var checkedAt string
	err := row.Scan(&r.ID, &r.CheckName, &r.State, &r.Summary, &r.Details, &r.Perfdata, &r.ResponseMs, &checkedAt)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, checkedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing checked_at %q: %w", checkedAt, err)
	}
	r.CheckedAt = t
	return &r, nil
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return runs, nil
}
