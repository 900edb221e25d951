package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Partition is the slice of a table selected by Key = Value together with
// the rows that replace it.
type Partition struct {
	Schema  string
	Table   string
	Key     string
	Value   any
	Columns []string
	Rows    [][]any
}

func (p Partition) ident() pgx.Identifier { return pgx.Identifier{p.Schema, p.Table} }

func (p Partition) String() string { return p.Schema + "." + p.Table }

// CopyFromSchema bulk-inserts rows into a schema-qualified table using the
// COPY protocol.
func CopyFromSchema(ctx context.Context, pool Pool, schema, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := pool.CopyFrom(ctx, pgx.Identifier{schema, table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s.%s", schema, table)
	}
	return n, nil
}

// Replace deletes every partition and copies in its rows inside a single
// transaction. Partitions are processed in order; the returned counts line up
// with them.
func Replace(ctx context.Context, pool Pool, parts []Partition) ([]int64, error) {
	for _, p := range parts {
		if len(p.Columns) == 0 {
			return nil, eris.Errorf("db: replace %s: no columns specified", p)
		}
		if p.Key == "" {
			return nil, eris.Errorf("db: replace %s: no partition key specified", p)
		}
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, p := range parts {
		del := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", p.ident().Sanitize(), pgx.Identifier{p.Key}.Sanitize())
		if _, err := tx.Exec(ctx, del, p.Value); err != nil {
			return nil, eris.Wrapf(err, "db: replace: clear %s", p)
		}
	}

	counts := make([]int64, len(parts))
	for i, p := range parts {
		n, err := CopyFromSchema(ctx, tx, p.Schema, p.Table, p.Columns, p.Rows)
		if err != nil {
			return nil, err
		}
		counts[i] = n
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "db: replace: commit tx")
	}
	return counts, nil
}
