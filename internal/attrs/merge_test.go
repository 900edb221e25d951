package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commuter-cli/internal/flow"
	"github.com/sells-group/commuter-cli/internal/geokey"
)

func key(code string) geokey.Key { return geokey.MustParse(code, geokey.County) }

func TestMerge_FieldLevelAcrossSources(t *testing.T) {
	a, b := key("06001"), key("06003")
	records := []flow.Record{{Source: a, Target: b, Weight: 10}}

	gaz := Source{Name: SourceGazetteer, Rows: []Row{
		{Key: a, Attrs: NodeAttributes{Latitude: Float(37.64), Longitude: Float(-121.89)}},
	}}
	pop := Source{Name: SourcePopulation, Rows: []Row{
		{Key: a, Attrs: NodeAttributes{Population: Int(1643700), AgeBands: map[string]int64{BandUnder18: 370000}}},
	}}
	names := Source{Name: SourceFlowNames, Rows: []Row{
		{Key: a, Attrs: NodeAttributes{State: String("California"), County: String("Alameda County")}},
	}}

	out, conflicts := Merge(records, []Source{gaz, pop, names})
	require.Empty(t, conflicts)
	require.Len(t, out, 2)

	got := out[a]
	assert.InDelta(t, 37.64, *got.Latitude, 1e-9)
	assert.InDelta(t, -121.89, *got.Longitude, 1e-9)
	assert.Equal(t, int64(1643700), *got.Population)
	assert.Equal(t, "California", *got.State)
	assert.Equal(t, "Alameda County", *got.County)
	band, ok := got.Band(BandUnder18)
	assert.True(t, ok)
	assert.Equal(t, int64(370000), band)

	assert.True(t, out[b].Empty(), "endpoint without reference rows gets an empty record")
}

func TestMerge_LaterSourceWinsAndIsReported(t *testing.T) {
	a := key("06001")
	records := []flow.Record{{Source: a, Target: a, Weight: 1}}

	crosswalk := Source{Name: SourceCrosswalk, Rows: []Row{
		{Key: a, Attrs: NodeAttributes{County: String("Alameda"), State: String("California")}},
	}}
	names := Source{Name: SourceFlowNames, Rows: []Row{
		{Key: a, Attrs: NodeAttributes{County: String("Alameda County")}},
	}}

	out, conflicts := Merge(records, []Source{crosswalk, names})
	assert.Equal(t, "Alameda County", *out[a].County)
	assert.Equal(t, "California", *out[a].State, "fields a later source omits are kept")

	require.Len(t, conflicts, 1)
	assert.Equal(t, Conflict{
		Key:      a,
		Field:    FieldCounty,
		Previous: "Alameda",
		Value:    "Alameda County",
		Replaced: SourceCrosswalk,
		Source:   SourceFlowNames,
	}, conflicts[0])

	// Reversing the declared order reverses the winner.
	out, _ = Merge(records, []Source{names, crosswalk})
	assert.Equal(t, "Alameda", *out[a].County)
}

func TestMerge_SameValueIsNotAConflict(t *testing.T) {
	a := key("06001")
	records := []flow.Record{{Source: a, Target: a}}
	s1 := Source{Name: "one", Rows: []Row{{Key: a, Attrs: NodeAttributes{Population: Int(0)}}}}
	s2 := Source{Name: "two", Rows: []Row{{Key: a, Attrs: NodeAttributes{Population: Int(0)}}}}

	out, conflicts := Merge(records, []Source{s1, s2})
	assert.Empty(t, conflicts)
	require.NotNil(t, out[a].Population)
	assert.Equal(t, int64(0), *out[a].Population, "true zero population stays set")
}

func TestMerge_MissingStaysUnset(t *testing.T) {
	a := key("06001")
	out, _ := Merge([]flow.Record{{Source: a, Target: a}}, nil)
	got, ok := out[a]
	require.True(t, ok)
	assert.Nil(t, got.Population)
	assert.Nil(t, got.State)
	assert.Nil(t, got.AgeBands)
	assert.Empty(t, got.Values())
}

func TestMerge_IgnoresNonEndpoints(t *testing.T) {
	a, other := key("06001"), key("36061")
	src := Source{Name: SourceGazetteer, Rows: []Row{
		{Key: other, Attrs: NodeAttributes{Latitude: Float(40.7)}},
	}}
	out, _ := Merge([]flow.Record{{Source: a, Target: a}}, []Source{src})
	_, ok := out[other]
	assert.False(t, ok)
}

func TestMerge_AgeBandsMergePerBand(t *testing.T) {
	a := key("06001")
	s1 := Source{Name: "one", Rows: []Row{{Key: a, Attrs: NodeAttributes{AgeBands: map[string]int64{BandUnder18: 5, Band65Plus: 9}}}}}
	s2 := Source{Name: "two", Rows: []Row{{Key: a, Attrs: NodeAttributes{AgeBands: map[string]int64{Band65Plus: 11}}}}}

	out, conflicts := Merge([]flow.Record{{Source: a, Target: a}}, []Source{s1, s2})
	assert.Equal(t, map[string]int64{BandUnder18: 5, Band65Plus: 11}, out[a].AgeBands)
	require.Len(t, conflicts, 1)
	assert.Equal(t, Band65Plus, conflicts[0].Field)
}

func TestFromRoles_UnionAcrossRoles(t *testing.T) {
	a, b, c := key("06001"), key("06003"), key("06005")

	// b appears only as a target in the first row and only as a source in the
	// second; both rows contribute to its record.
	rows := []RoleRow{
		{Source: a, Target: b, SourceAttrs: NodeAttributes{County: String("Alameda County")}, TargetAttrs: NodeAttributes{State: String("California")}},
		{Source: b, Target: c, SourceAttrs: NodeAttributes{County: String("Alpine County")}, TargetAttrs: NodeAttributes{County: String("Amador County")}},
	}
	src := FromRoles(SourceFlowNames, rows)
	records := []flow.Record{{Source: a, Target: b}, {Source: b, Target: c}}

	out, conflicts := Merge(records, []Source{src})
	assert.Empty(t, conflicts)
	assert.Equal(t, "California", *out[b].State)
	assert.Equal(t, "Alpine County", *out[b].County)
	assert.Equal(t, "Alameda County", *out[a].County)
	assert.Equal(t, "Amador County", *out[c].County)
}

func TestFromRoles_SourceRoleAppliedAfterTargetRole(t *testing.T) {
	a, b := key("06001"), key("06003")
	rows := []RoleRow{
		{Source: b, Target: a, SourceAttrs: NodeAttributes{County: String("from source role")}},
		{Source: a, Target: b, TargetAttrs: NodeAttributes{County: String("from target role")}},
	}
	src := FromRoles(SourceFlowNames, rows)
	require.Len(t, src.Rows, 2)
	assert.Equal(t, "from target role", *src.Rows[0].Attrs.County)
	assert.Equal(t, "from source role", *src.Rows[1].Attrs.County)
}

func TestNodeAttributes_CloneIsDeep(t *testing.T) {
	orig := NodeAttributes{State: String("Ohio"), AgeBands: map[string]int64{BandUnder18: 1}}
	c := orig.Clone()
	*c.State = "Iowa"
	c.AgeBands[BandUnder18] = 2
	assert.Equal(t, "Ohio", *orig.State)
	assert.Equal(t, int64(1), orig.AgeBands[BandUnder18])
}

func TestNodeAttributes_Values(t *testing.T) {
	a := NodeAttributes{
		State:      String("Ohio"),
		Latitude:   Float(39.961176),
		Population: Int(0),
		AgeBands:   map[string]int64{Band18to24: 12},
	}
	assert.Equal(t, map[string]string{
		FieldState:      "Ohio",
		FieldLatitude:   "39.961176",
		FieldPopulation: "0",
		Band18to24:      "12",
	}, a.Values())
}
