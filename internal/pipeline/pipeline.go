// Package pipeline builds a commuter-flow graph: canonicalize, merge
// attributes, aggregate, filter, assemble. A Descriptor selects the tables
// and key granularity; nothing is retained between builds.
package pipeline

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commuter-cli/internal/attrs"
	"github.com/sells-group/commuter-cli/internal/flow"
	"github.com/sells-group/commuter-cli/internal/geokey"
	"github.com/sells-group/commuter-cli/internal/graph"
	"github.com/sells-group/commuter-cli/internal/loader"
	"github.com/sells-group/commuter-cli/internal/scope"
)

// Params holds the per-build settings.
type Params struct {
	Scope         scope.Scope
	MinWeight     int64
	DropSelfLoops bool
	Concurrency   int // units loaded in parallel by BuildUnits
}

// Table is a reference table attributed to a named source.
type Table struct {
	Source string
	Rows   []loader.RefRow
}

// Unit is everything loaded for one load unit (a state, or the nation).
type Unit struct {
	Name       string
	Flows      []loader.RawFlow
	References []Table
	Skipped    int // rows the loaders could not parse
}

// Stats summarizes a build.
type Stats struct {
	Units              int
	RawRecords         int // flow rows handed to the canonicalizer
	Skipped            int // rows the loaders could not parse
	Rejected           int // flow rows with a malformed identifier or a negative count
	RejectedReferences int // reference rows with a malformed identifier
	Records            int // canonical flow records
	Aggregated         int // edges before filtering
	Conflicts          int
	Nodes              int
	Edges              int
	TotalWeight        int64
}

// Result is the outcome of a build.
type Result struct {
	Graph     *graph.CommuterGraph
	Conflicts []attrs.Conflict
	Stats     Stats
}

// Build runs the graph construction over loaded tables. Shared tables are
// applied before the per-unit tables of the same source, and units are
// concatenated in slice order before aggregation, so the result depends only
// on the inputs and not on how they were loaded.
func Build(d Descriptor, shared []Table, units []Unit, p Params) (*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("granularity", d.Name))

	if !d.Granularity().Valid() {
		return nil, eris.Errorf("pipeline: descriptor %q is not resolved", d.Name)
	}

	var stats Stats
	stats.Units = len(units)

	perUnit := make([][]flow.Record, len(units))
	var roles []attrs.RoleRow
	for i, u := range units {
		stats.Skipped += u.Skipped
		stats.RawRecords += len(u.Flows)
		recs := make([]flow.Record, 0, len(u.Flows))
		for _, rf := range u.Flows {
			if rf.Weight < 0 || (rf.Margin != nil && *rf.Margin < 0) {
				stats.Rejected++
				continue
			}
			src, err := canonicalFlowKey(d, rf.Source)
			if err != nil {
				stats.Rejected++
				continue
			}
			dst, err := canonicalFlowKey(d, rf.Target)
			if err != nil {
				stats.Rejected++
				continue
			}
			recs = append(recs, flow.Record{Source: src, Target: dst, Weight: rf.Weight, Margin: rf.Margin})
			if d.FlowNames {
				roles = append(roles, attrs.RoleRow{
					Source:      src,
					Target:      dst,
					SourceAttrs: rf.SourceAttrs,
					TargetAttrs: rf.TargetAttrs,
				})
			}
		}
		perUnit[i] = recs
	}
	records := flow.Concat(perUnit...)
	stats.Records = len(records)

	sources := make([]attrs.Source, 0, len(d.SourceOrder()))
	for _, name := range d.SourceOrder() {
		if name == attrs.SourceFlowNames {
			sources = append(sources, attrs.FromRoles(name, roles))
			continue
		}
		src := attrs.Source{Name: name}
		tables := append([]Table(nil), shared...)
		for _, u := range units {
			tables = append(tables, u.References...)
		}
		for _, t := range tables {
			if t.Source != name {
				continue
			}
			for _, row := range t.Rows {
				k, err := geokey.Canonicalize(row.Code, d.Granularity())
				if err != nil {
					stats.RejectedReferences++
					continue
				}
				src.Rows = append(src.Rows, attrs.Row{Key: k, Attrs: row.Attrs})
			}
		}
		sources = append(sources, src)
	}

	nodes, conflicts := attrs.Merge(records, sources)
	stats.Conflicts = len(conflicts)

	edges := flow.Aggregate(records)
	stats.Aggregated = len(edges)

	edges, nodes = scope.Filter(edges, nodes, scope.Params{
		Scope:         p.Scope,
		MinWeight:     p.MinWeight,
		DropSelfLoops: p.DropSelfLoops,
	})

	g, err := graph.Assemble(d.Granularity(), edges, nodes)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: assemble")
	}
	stats.Nodes = g.NumNodes()
	stats.Edges = g.NumEdges()
	stats.TotalWeight = g.TotalWeight()

	if stats.Rejected > 0 || stats.RejectedReferences > 0 {
		log.Warn("dropped malformed identifiers",
			zap.Int("flows", stats.Rejected),
			zap.Int("references", stats.RejectedReferences),
		)
	}
	log.Info("graph built",
		zap.String("scope", p.Scope.String()),
		zap.Int64("min_weight", p.MinWeight),
		zap.Int("records", stats.Records),
		zap.Int("nodes", stats.Nodes),
		zap.Int("edges", stats.Edges),
		zap.Int("conflicts", stats.Conflicts),
	)

	return &Result{Graph: g, Conflicts: conflicts, Stats: stats}, nil
}

// canonicalFlowKey canonicalizes raw flow components at the descriptor's flow
// level and rolls the key up to the graph granularity.
func canonicalFlowKey(d Descriptor, code []string) (geokey.Key, error) {
	k, err := geokey.Canonicalize(code, d.FlowLevel())
	if err != nil {
		return geokey.Key{}, err
	}
	if !d.Rollup() {
		return k, nil
	}
	return geokey.Rollup(k, d.Granularity())
}
