package graph

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commuter-cli/internal/attrs"
	"github.com/sells-group/commuter-cli/internal/flow"
	"github.com/sells-group/commuter-cli/internal/geokey"
)

func county(code string) geokey.Key { return geokey.MustParse(code, geokey.County) }

func TestAssemble_Basic(t *testing.T) {
	a, b := county("06001"), county("06003")
	edges := []flow.Edge{{Source: a, Target: b, Weight: 8, Margin: flow.Int64(3), RawCount: 1}}
	nodeAttrs := map[geokey.Key]attrs.NodeAttributes{
		a: {County: attrs.String("Alameda County")},
	}

	g, err := Assemble(geokey.County, edges, nodeAttrs)
	require.NoError(t, err)
	assert.Equal(t, 2, g.NumNodes())
	assert.Equal(t, 1, g.NumEdges())
	assert.Equal(t, int64(8), g.TotalWeight())
	assert.Equal(t, geokey.County, g.Granularity())

	n, ok := g.Node(a)
	require.True(t, ok)
	assert.Equal(t, "Alameda County", *n.Attrs.County)

	n, ok = g.Node(b)
	require.True(t, ok)
	assert.True(t, n.Attrs.Empty(), "missing attributes stay unset")

	e := g.Edges()[0]
	require.NotNil(t, e.Margin)
	assert.Equal(t, int64(3), *e.Margin)
}

func TestAssemble_Empty(t *testing.T) {
	g, err := Assemble(geokey.Tract, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, g.NumNodes())
	assert.Zero(t, g.NumEdges())
	assert.Empty(t, g.EdgeTable())
}

func TestAssemble_IgnoresOrphanAttributes(t *testing.T) {
	a := county("06001")
	g, err := Assemble(geokey.County, []flow.Edge{{Source: a, Target: a, Weight: 1}}, map[geokey.Key]attrs.NodeAttributes{
		county("36061"): {State: attrs.String("New York")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, g.NumNodes())
}

func TestAssemble_RejectsParallelEdges(t *testing.T) {
	a, b := county("06001"), county("06003")
	_, err := Assemble(geokey.County, []flow.Edge{
		{Source: a, Target: b, Weight: 1},
		{Source: a, Target: b, Weight: 2},
	}, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicateEdge))
}

func TestAssemble_InvalidGranularity(t *testing.T) {
	_, err := Assemble(geokey.Granularity(0), nil, nil)
	require.Error(t, err)
}

func TestValidate_DetectsDanglingEdge(t *testing.T) {
	a, b := county("06001"), county("06003")
	g := &CommuterGraph{
		granularity: geokey.County,
		nodes:       []Node{{Key: a}},
		index:       map[geokey.Key]int{a: 0},
		edges:       []Edge{{Source: a, Target: b, Weight: 1}},
	}
	err := g.Validate()
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDanglingEdge))
}

func TestAssemble_NoDanglingEdgesRandomized(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 100; trial++ {
		var recs []flow.Record
		for i := 0; i < rng.IntN(60); i++ {
			recs = append(recs, flow.Record{
				Source: county(fmt.Sprintf("%02d%03d", 1+rng.IntN(2)*5, 1+rng.IntN(15))),
				Target: county(fmt.Sprintf("%02d%03d", 1+rng.IntN(2)*5, 1+rng.IntN(15))),
				Weight: rng.Int64N(50),
			})
		}
		g, err := Assemble(geokey.County, flow.Aggregate(recs), nil)
		require.NoError(t, err)
		for _, e := range g.Edges() {
			_, ok := g.Node(e.Source)
			assert.True(t, ok)
			_, ok = g.Node(e.Target)
			assert.True(t, ok)
		}
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	a := county("06001")
	g, err := Assemble(geokey.County,
		[]flow.Edge{{Source: a, Target: a, Weight: 1, Margin: flow.Int64(2)}},
		map[geokey.Key]attrs.NodeAttributes{a: {State: attrs.String("California")}},
	)
	require.NoError(t, err)

	nodes := g.Nodes()
	*nodes[0].Attrs.State = "Oregon"
	edges := g.Edges()
	*edges[0].Margin = 99
	edges[0].Weight = 99

	n, _ := g.Node(a)
	assert.Equal(t, "California", *n.Attrs.State)
	assert.Equal(t, int64(2), *g.Edges()[0].Margin)
	assert.Equal(t, int64(1), g.Edges()[0].Weight)
}

func TestEdgeTable(t *testing.T) {
	padded := geokey.MustParse("25017", geokey.Subdivision)
	town := geokey.MustParse("2502107000", geokey.Subdivision)
	g, err := Assemble(geokey.Subdivision,
		[]flow.Edge{{Source: padded, Target: town, Weight: 40}},
		map[geokey.Key]attrs.NodeAttributes{
			padded: {County: attrs.String("Middlesex County")},
			town:   {Subdivision: attrs.String("Boston city")},
		},
	)
	require.NoError(t, err)

	rows := g.EdgeTable()
	require.Len(t, rows, 1)
	assert.Equal(t, "2501700000~", rows[0].Source)
	assert.Equal(t, "2502107000", rows[0].Target)
	assert.Nil(t, rows[0].Margin)
	assert.Equal(t, "Middlesex County", *rows[0].SourceAttrs.County)
	assert.Equal(t, "Boston city", *rows[0].TargetAttrs.Subdivision)
}
