// Package flow aggregates canonical origin-destination records into unique edges.
package flow

import (
	"slices"

	"github.com/sells-group/commuter-cli/internal/geokey"
)

// Record is one directed, weighted observation between two canonical keys.
// A nil Margin means the source table carried no margin of error.
type Record struct {
	Source geokey.Key
	Target geokey.Key
	Weight int64
	Margin *int64
}

// Edge is the aggregate of every Record sharing a (source, target) pair.
type Edge struct {
	Source   geokey.Key
	Target   geokey.Key
	Weight   int64
	Margin   *int64 // set only when RawCount == 1
	RawCount int
}

// SelfLoop reports whether the edge starts and ends at the same key.
func (e Edge) SelfLoop() bool { return e.Source == e.Target }

type pair struct {
	source geokey.Key
	target geokey.Key
}

// Aggregate groups records by (source, target) and sums their weights.
// Margins of error do not add, so an edge keeps its margin only when it was
// built from exactly one record. Self-loops are kept. The result is sorted by
// (source, target).
func Aggregate(records []Record) []Edge {
	index := make(map[pair]int, len(records))
	edges := make([]Edge, 0, len(records))

	for _, r := range records {
		p := pair{source: r.Source, target: r.Target}
		i, ok := index[p]
		if !ok {
			index[p] = len(edges)
			edges = append(edges, Edge{
				Source:   r.Source,
				Target:   r.Target,
				Weight:   r.Weight,
				Margin:   copyMargin(r.Margin),
				RawCount: 1,
			})
			continue
		}
		e := &edges[i]
		e.Weight += r.Weight
		e.RawCount++
		e.Margin = nil
	}

	SortEdges(edges)
	return edges
}

// SortEdges sorts edges in place by (source, target).
func SortEdges(edges []Edge) {
	slices.SortFunc(edges, func(a, b Edge) int {
		if c := geokey.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return geokey.Compare(a.Target, b.Target)
	})
}

// Concat joins per-unit record slices in unit order. Callers aggregate the
// concatenation once, so an inter-state flow reported by two units is summed
// exactly once per raw record.
func Concat(units ...[]Record) []Record {
	n := 0
	for _, u := range units {
		n += len(u)
	}
	out := make([]Record, 0, n)
	for _, u := range units {
		out = append(out, u...)
	}
	return out
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

func copyMargin(m *int64) *int64 {
	if m == nil {
		return nil
	}
	v := *m
	return &v
}
