package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commuter-cli/internal/attrs"
	"github.com/sells-group/commuter-cli/internal/geokey"
	"github.com/sells-group/commuter-cli/internal/scope"
)

func TestDescriptors_Builtin(t *testing.T) {
	ds := Descriptors()
	require.Len(t, ds, 4)

	tests := []struct {
		g         geokey.Granularity
		name      string
		flowLevel geokey.Granularity
		rollup    bool
		order     []string
	}{
		{geokey.County, "county", geokey.County, false, []string{"gazetteer", "population", "flow_names"}},
		{geokey.Subdivision, "town", geokey.Subdivision, false, []string{"gazetteer", "population", "flow_names"}},
		{geokey.Tract, "tract", geokey.Block, true, []string{"gazetteer", "population", "crosswalk"}},
		{geokey.Block, "block", geokey.Block, false, []string{"crosswalk"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Lookup(tt.g)
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name)
			assert.Equal(t, tt.g, d.Granularity())
			assert.Equal(t, tt.flowLevel, d.FlowLevel())
			assert.Equal(t, tt.rollup, d.Rollup())
			assert.Equal(t, tt.order, d.SourceOrder())
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup(geokey.Granularity(42))
	require.Error(t, err)
}

func TestDescriptorUnits(t *testing.T) {
	county, err := Lookup(geokey.County)
	require.NoError(t, err)
	assert.Equal(t, []string{NationalUnit}, county.Units(scope.All()))

	block, err := Lookup(geokey.Block)
	require.NoError(t, err)
	sc, err := scope.Parse("ny,ca")
	require.NoError(t, err)
	assert.Equal(t, []string{"ca", "ny"}, block.Units(sc))
	assert.Len(t, block.Units(scope.All()), 51)
}

func TestParseDescriptors_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad kind",
			yaml: "granularities:\n  - {name: x, key: county, flows: {kind: ftp, level: county, units: national}}\n",
			want: "unknown flow kind",
		},
		{
			name: "no rollup path",
			yaml: "granularities:\n  - {name: x, key: town, flows: {kind: lodes_od, level: tract, units: state}}\n",
			want: "do not roll up",
		},
		{
			name: "bad source",
			yaml: "granularities:\n  - {name: x, key: county, flows: {kind: acs_commuting, level: county, units: national}, references: [{source: zip, level: county}]}\n",
			want: "unknown reference source",
		},
		{
			name: "bad units",
			yaml: "granularities:\n  - {name: x, key: county, flows: {kind: acs_commuting, level: county, units: metro}}\n",
			want: "unknown units",
		},
		{
			name: "duplicate",
			yaml: "granularities:\n" +
				"  - {name: a, key: county, flows: {kind: acs_commuting, level: county, units: national}}\n" +
				"  - {name: b, key: county, flows: {kind: acs_commuting, level: county, units: national}}\n",
			want: "share granularity",
		},
		{
			name: "malformed",
			yaml: "granularities: [",
			want: "parse descriptors",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDescriptors([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSourceOrder_DeduplicatesGazetteers(t *testing.T) {
	d, err := Lookup(geokey.Subdivision)
	require.NoError(t, err)
	assert.Len(t, d.References, 3)
	assert.Equal(t, []string{attrs.SourceGazetteer, attrs.SourcePopulation, attrs.SourceFlowNames}, d.SourceOrder())
}
