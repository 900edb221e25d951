package graph

import "github.com/sells-group/commuter-cli/internal/attrs"

// EdgeRow is one row of the flat edge table: the edge plus the attributes of
// both endpoints.
type EdgeRow struct {
	Source      string
	Target      string
	Weight      int64
	Margin      *int64
	SourceAttrs attrs.NodeAttributes
	TargetAttrs attrs.NodeAttributes
}

// EdgeTable flattens the graph into rows in edge order.
func (cg *CommuterGraph) EdgeTable() []EdgeRow {
	rows := make([]EdgeRow, len(cg.edges))
	for i, e := range cg.edges {
		src := cg.nodes[cg.index[e.Source]]
		dst := cg.nodes[cg.index[e.Target]]
		rows[i] = EdgeRow{
			Source:      e.Source.String(),
			Target:      e.Target.String(),
			Weight:      e.Weight,
			Margin:      clone(e.Margin),
			SourceAttrs: src.Attrs.Clone(),
			TargetAttrs: dst.Attrs.Clone(),
		}
	}
	return rows
}
