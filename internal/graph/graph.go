// Package graph assembles the immutable directed commuter-flow graph.
package graph

import (
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/commuter-cli/internal/attrs"
	"github.com/sells-group/commuter-cli/internal/flow"
	"github.com/sells-group/commuter-cli/internal/geokey"
)

// ErrDanglingEdge is returned when an edge endpoint has no node entry.
var ErrDanglingEdge = eris.New("edge endpoint has no node")

// ErrDuplicateEdge is returned when two edges share a (source, target) pair.
var ErrDuplicateEdge = eris.New("parallel edge")

// Node is a graph vertex with its merged attributes.
type Node struct {
	Key   geokey.Key
	Attrs attrs.NodeAttributes
}

// Edge is a directed weighted edge. Margin is nil when unavailable.
type Edge struct {
	Source geokey.Key
	Target geokey.Key
	Weight int64
	Margin *int64
}

// CommuterGraph is a directed graph without parallel edges. It cannot be
// modified after Assemble returns it; accessors hand out copies.
type CommuterGraph struct {
	granularity geokey.Granularity
	nodes       []Node
	index       map[geokey.Key]int
	edges       []Edge
}

// Assemble builds the graph from aggregated edges. The node set is the union
// of edge endpoints, each carrying nodeAttrs[key] when present. Entries in
// nodeAttrs that are not endpoints are ignored. An empty edge list yields a
// valid empty graph.
func Assemble(g geokey.Granularity, edges []flow.Edge, nodeAttrs map[geokey.Key]attrs.NodeAttributes) (*CommuterGraph, error) {
	if !g.Valid() {
		return nil, eris.Errorf("graph: invalid granularity %d", int(g))
	}

	keys := make(map[geokey.Key]struct{}, 2*len(edges))
	for _, e := range edges {
		keys[e.Source] = struct{}{}
		keys[e.Target] = struct{}{}
	}

	sorted := make([]geokey.Key, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	slices.SortFunc(sorted, geokey.Compare)

	cg := &CommuterGraph{
		granularity: g,
		nodes:       make([]Node, len(sorted)),
		index:       make(map[geokey.Key]int, len(sorted)),
		edges:       make([]Edge, len(edges)),
	}
	for i, k := range sorted {
		cg.nodes[i] = Node{Key: k, Attrs: nodeAttrs[k].Clone()}
		cg.index[k] = i
	}
	for i, e := range edges {
		cg.edges[i] = Edge{Source: e.Source, Target: e.Target, Weight: e.Weight, Margin: clone(e.Margin)}
	}
	slices.SortFunc(cg.edges, compareEdges)

	if err := cg.Validate(); err != nil {
		return nil, err
	}
	return cg, nil
}

// Validate checks that every edge endpoint is a node and that no two edges
// share a (source, target) pair.
func (cg *CommuterGraph) Validate() error {
	for i, e := range cg.edges {
		if _, ok := cg.index[e.Source]; !ok {
			return eris.Wrapf(ErrDanglingEdge, "graph: source %s", e.Source)
		}
		if _, ok := cg.index[e.Target]; !ok {
			return eris.Wrapf(ErrDanglingEdge, "graph: target %s", e.Target)
		}
		if i > 0 && compareEdges(cg.edges[i-1], e) == 0 {
			return eris.Wrapf(ErrDuplicateEdge, "graph: %s -> %s", e.Source, e.Target)
		}
	}
	return nil
}

// Granularity returns the level the graph was built at.
func (cg *CommuterGraph) Granularity() geokey.Granularity { return cg.granularity }

// NumNodes returns the node count.
func (cg *CommuterGraph) NumNodes() int { return len(cg.nodes) }

// NumEdges returns the edge count.
func (cg *CommuterGraph) NumEdges() int { return len(cg.edges) }

// Nodes returns the nodes sorted by key.
func (cg *CommuterGraph) Nodes() []Node {
	out := make([]Node, len(cg.nodes))
	for i, n := range cg.nodes {
		out[i] = Node{Key: n.Key, Attrs: n.Attrs.Clone()}
	}
	return out
}

// Node looks up a node by key.
func (cg *CommuterGraph) Node(k geokey.Key) (Node, bool) {
	i, ok := cg.index[k]
	if !ok {
		return Node{}, false
	}
	n := cg.nodes[i]
	return Node{Key: n.Key, Attrs: n.Attrs.Clone()}, true
}

// Edges returns the edges sorted by (source, target).
func (cg *CommuterGraph) Edges() []Edge {
	out := make([]Edge, len(cg.edges))
	for i, e := range cg.edges {
		out[i] = e
		out[i].Margin = clone(e.Margin)
	}
	return out
}

// TotalWeight sums every edge weight.
func (cg *CommuterGraph) TotalWeight() int64 {
	var total int64
	for _, e := range cg.edges {
		total += e.Weight
	}
	return total
}

func compareEdges(a, b Edge) int {
	if c := geokey.Compare(a.Source, b.Source); c != 0 {
		return c
	}
	return geokey.Compare(a.Target, b.Target)
}

func clone(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
