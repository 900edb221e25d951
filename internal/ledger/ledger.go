// Package ledger records graph builds in a local SQLite database.
package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for an unknown run id.
var ErrNotFound = eris.New("ledger: run not found")

// Status is the state of a build run.
type Status string

// Run statuses.
const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Params describes the inputs of a build.
type Params struct {
	Granularity string
	States      []string // empty means every state
	MinWeight   int64
}

// Summary holds the counts recorded when a build completes.
type Summary struct {
	Nodes       int
	Edges       int
	TotalWeight int64
	Rejected    int
	Conflicts   int
	Artifacts   []string
}

// Run is one recorded build.
type Run struct {
	ID          string
	Params      Params
	Status      Status
	Summary     Summary
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Filter narrows List results.
type Filter struct {
	Granularity string
	Status      Status
	Limit       int
}

// Ledger is a SQLite-backed run log.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path, creating its directory, and
// applies the schema.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "ledger: create %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "ledger: exec %s", pragma)
		}
	}

	l := &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := l.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS builds (
	id           TEXT PRIMARY KEY,
	granularity  TEXT NOT NULL,
	states       TEXT NOT NULL DEFAULT '',
	min_weight   INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL,
	nodes        INTEGER NOT NULL DEFAULT 0,
	edges        INTEGER NOT NULL DEFAULT 0,
	total_weight INTEGER NOT NULL DEFAULT 0,
	rejected     INTEGER NOT NULL DEFAULT 0,
	conflicts    INTEGER NOT NULL DEFAULT 0,
	artifacts    TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_builds_granularity ON builds(granularity);
CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at);
`

func (l *Ledger) migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, schema)
	return eris.Wrap(err, "ledger: migrate")
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Start records a running build and returns it.
func (l *Ledger) Start(ctx context.Context, p Params) (*Run, error) {
	r := &Run{ID: uuid.NewString(), Params: p, Status: StatusRunning, StartedAt: l.now()}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO builds (id, granularity, states, min_weight, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, p.Granularity, strings.Join(p.States, ","), p.MinWeight, string(r.Status), r.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: insert build")
	}
	return r, nil
}

// Complete marks a build complete with its summary.
func (l *Ledger) Complete(ctx context.Context, id string, s Summary) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE builds SET status = ?, nodes = ?, edges = ?, total_weight = ?, rejected = ?, conflicts = ?, artifacts = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(StatusComplete), s.Nodes, s.Edges, s.TotalWeight, s.Rejected, s.Conflicts, strings.Join(s.Artifacts, ","), l.now(),
		id, string(StatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "ledger: complete %s", id)
	}
	return checkRowsAffected(res, id)
}

// Fail marks a build failed with the error message.
func (l *Ledger) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE builds SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(StatusFailed), msg, l.now(), id, string(StatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "ledger: fail %s", id)
	}
	return checkRowsAffected(res, id)
}

const selectBuild = `SELECT id, granularity, states, min_weight, status, nodes, edges, total_weight,
	rejected, conflicts, artifacts, error, started_at, completed_at FROM builds`

// Get returns one run.
func (l *Ledger) Get(ctx context.Context, id string) (*Run, error) {
	return scanRun(l.db.QueryRowContext(ctx, selectBuild+` WHERE id = ?`, id))
}

// List returns runs newest first. The default limit is 50.
func (l *Ledger) List(ctx context.Context, f Filter) ([]Run, error) {
	query := selectBuild + ` WHERE 1=1`
	var args []any
	if f.Granularity != "" {
		query += ` AND granularity = ?`
		args = append(args, f.Granularity)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list builds")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "ledger: list builds iterate")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "ledger: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "ledger: no running build %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var (
		r         Run
		states    string
		artifacts string
		status    string
		completed sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Params.Granularity, &states, &r.Params.MinWeight, &status,
		&r.Summary.Nodes, &r.Summary.Edges, &r.Summary.TotalWeight, &r.Summary.Rejected, &r.Summary.Conflicts,
		&artifacts, &r.Error, &r.StartedAt, &completed)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "ledger: scan build")
	}

	r.Status = Status(status)
	r.Params.States = splitList(states)
	r.Summary.Artifacts = splitList(artifacts)
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
