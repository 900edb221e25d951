package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "commuter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() }) //nolint:errcheck
	return l
}

// tick makes the ledger clock advance one second per call.
func tick(l *Ledger) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	l.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestLedger_StartComplete(t *testing.T) {
	l := newTestLedger(t)
	tick(l)
	ctx := context.Background()

	run, err := l.Start(ctx, Params{Granularity: "tract", States: []string{"ca", "nv"}, MinWeight: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, StatusRunning, run.Status)

	require.NoError(t, l.Complete(ctx, run.ID, Summary{
		Nodes: 10, Edges: 20, TotalWeight: 300, Rejected: 2, Conflicts: 1,
		Artifacts: []string{"out/tract_commuter_flows.graphml", "out/tract_commuter_flows.tsv"},
	}))

	got, err := l.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, Params{Granularity: "tract", States: []string{"ca", "nv"}, MinWeight: 5}, got.Params)
	assert.Equal(t, 20, got.Summary.Edges)
	assert.Equal(t, int64(300), got.Summary.TotalWeight)
	assert.Len(t, got.Summary.Artifacts, 2)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.After(got.StartedAt))
	assert.Empty(t, got.Error)
}

func TestLedger_Fail(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	run, err := l.Start(ctx, Params{Granularity: "county"})
	require.NoError(t, err)
	require.NoError(t, l.Fail(ctx, run.ID, errors.New("loader: missing columns [S000]")))

	got, err := l.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "loader: missing columns [S000]", got.Error)
	assert.Nil(t, got.Params.States, "all states")
	assert.NotNil(t, got.CompletedAt)
}

func TestLedger_FinishOnlyOnce(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	run, err := l.Start(ctx, Params{Granularity: "county"})
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, run.ID, Summary{}))

	err = l.Fail(ctx, run.ID, errors.New("late"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))

	got, err := l.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
}

func TestLedger_Unknown(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Get(ctx, "nope")
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.True(t, eris.Is(l.Complete(ctx, "nope", Summary{}), ErrNotFound))
}

func TestLedger_List(t *testing.T) {
	l := newTestLedger(t)
	tick(l)
	ctx := context.Background()

	var ids []string
	for _, g := range []string{"county", "tract", "county", "block"} {
		run, err := l.Start(ctx, Params{Granularity: g})
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}
	require.NoError(t, l.Fail(ctx, ids[3], errors.New("x")))

	all, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ids[3], all[0].ID, "newest first")
	assert.Equal(t, ids[0], all[3].ID)

	counties, err := l.List(ctx, Filter{Granularity: "county"})
	require.NoError(t, err)
	require.Len(t, counties, 2)
	assert.Equal(t, ids[2], counties[0].ID)

	failed, err := l.List(ctx, Filter{Status: StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "block", failed[0].Params.Granularity)

	limited, err := l.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLedger_ReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commuter.db")
	ctx := context.Background()

	l, err := Open(ctx, path)
	require.NoError(t, err)
	run, err := l.Start(ctx, Params{Granularity: "town"})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(ctx, path)
	require.NoError(t, err)
	defer l.Close() //nolint:errcheck
	got, err := l.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "town", got.Params.Granularity)
}
