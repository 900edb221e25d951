package geokey

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name       string
		components []string
		g          Granularity
		id         string
		padded     bool
	}{
		{"county", []string{"06", "001"}, County, "06001", false},
		{"three digit state", []string{"006", "001"}, County, "06001", false},
		{"subdivision", []string{"25", "017", "07000"}, Subdivision, "2501707000", false},
		{"subdivision padded", []string{"25", "017"}, Subdivision, "2501700000", true},
		{"subdivision empty component padded", []string{"25", "017", ""}, Subdivision, "2501700000", true},
		{"tract", []string{"36", "061", "000100"}, Tract, "36061000100", false},
		{"block", []string{"36", "061", "000100", "1000"}, Block, "360610001001000", false},
		{"block padded at block", []string{"36", "061", "000100"}, Block, "360610001000000", true},
		{"whitespace trimmed", []string{" 06 ", "001 "}, County, "06001", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := Canonicalize(tt.components, tt.g)
			require.NoError(t, err)
			assert.Equal(t, tt.id, k.ID())
			assert.Equal(t, tt.padded, k.Padded())
			assert.Len(t, k.ID(), tt.g.Width())
		})
	}
}

func TestCanonicalize_Malformed(t *testing.T) {
	tests := []struct {
		name       string
		components []string
		g          Granularity
	}{
		{"canada workplace", []string{"091", "001"}, County},
		{"zero state", []string{"00", "001"}, County},
		{"puerto rico", []string{"72", "001"}, County},
		{"short county", []string{"06", "1"}, County},
		{"non numeric", []string{"06", "0a1"}, County},
		{"missing county", []string{"06", ""}, County},
		{"too many components", []string{"06", "001", "00100"}, County},
		{"gap before real component", []string{"36", "061", "", "1000"}, Block},
		{"long tract", []string{"36", "061", "0001000"}, Tract},
		{"empty", nil, County},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize(tt.components, tt.g)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrMalformedIdentifier), "got %v", err)
		})
	}
}

func TestCanonicalize_ThreeDigitCanadaRejected(t *testing.T) {
	s, err := NormalizeState("091")
	require.Error(t, err)
	assert.Empty(t, s)
	assert.Contains(t, err.Error(), `"91"`)
}

func TestPaddingDoesNotCollide(t *testing.T) {
	padded, err := Canonicalize([]string{"25", "017"}, Subdivision)
	require.NoError(t, err)
	zeroCoded, err := Canonicalize([]string{"25", "017", "00000"}, Subdivision)
	require.NoError(t, err)

	assert.Equal(t, padded.ID(), zeroCoded.ID())
	assert.NotEqual(t, padded, zeroCoded)
	assert.True(t, padded.Padded())
	assert.False(t, zeroCoded.Padded())
	assert.Equal(t, "2501700000~", padded.String())
	assert.Equal(t, "2501700000", zeroCoded.String())

	m := map[Key]int{padded: 1, zeroCoded: 2}
	assert.Len(t, m, 2)
}

func TestCompare(t *testing.T) {
	a := MustParse("06001", County)
	b := MustParse("06003", County)
	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare(b, a))
	assert.Equal(t, 0, Compare(a, a))

	actual := MustParse("2501700000", Subdivision)
	pad := MustParse("25017", Subdivision)
	assert.Equal(t, -1, Compare(actual, pad))
}

func TestSplit(t *testing.T) {
	parts, err := Split("360610001001000", Block)
	require.NoError(t, err)
	assert.Equal(t, []string{"36", "061", "000100", "1000"}, parts)

	parts, err = Split("06001", Subdivision)
	require.NoError(t, err)
	assert.Equal(t, []string{"06", "001"}, parts)

	_, err = Split("0600", County)
	assert.True(t, eris.Is(err, ErrMalformedIdentifier))

	_, err = Split("06", County)
	assert.True(t, eris.Is(err, ErrMalformedIdentifier))

	_, err = Split("0600100", Subdivision)
	assert.True(t, eris.Is(err, ErrMalformedIdentifier))
}

func TestParse_PadsCountyToSubdivision(t *testing.T) {
	k, err := Parse("06001", Subdivision)
	require.NoError(t, err)
	assert.Equal(t, "0600100000", k.ID())
	assert.True(t, k.Padded())
	assert.Equal(t, "06", k.State())
}

func TestParseGranularity(t *testing.T) {
	for in, want := range map[string]Granularity{
		"county": County, "Town": Subdivision, "subdivision": Subdivision,
		"tract": Tract, " block ": Block,
	} {
		g, err := ParseGranularity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, g)
	}

	_, err := ParseGranularity("zip")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnknownGranularity))
}

func TestGranularityWidths(t *testing.T) {
	assert.Equal(t, 5, County.Width())
	assert.Equal(t, 10, Subdivision.Width())
	assert.Equal(t, 11, Tract.Width())
	assert.Equal(t, 15, Block.Width())
	assert.Equal(t, 4, Block.Components())
	assert.False(t, Granularity(0).Valid())
	assert.Equal(t, "town", Subdivision.String())
}

func TestLookupState(t *testing.T) {
	s, ok := LookupState("ca")
	require.True(t, ok)
	assert.Equal(t, "06", s.FIPS)

	s, ok = LookupState("036")
	require.True(t, ok)
	assert.Equal(t, "NY", s.Abbr)

	_, ok = LookupState("PR")
	assert.False(t, ok)

	assert.Len(t, AllStateFIPS(), 51)
	assert.Equal(t, "al", AllStateAbbrs()[0])
}

func TestRollup(t *testing.T) {
	block := MustParse("060014001001000", Block)
	assert.Equal(t, Block, block.Granularity())

	tract, err := Rollup(block, Tract)
	require.NoError(t, err)
	assert.Equal(t, "06001400100", tract.ID())
	assert.False(t, tract.Padded())

	county, err := Rollup(tract, County)
	require.NoError(t, err)
	assert.Equal(t, MustParse("06001", County), county)

	same, err := Rollup(county, County)
	require.NoError(t, err)
	assert.Equal(t, county, same)

	_, err = Rollup(tract, Subdivision)
	require.Error(t, err)

	_, err = Rollup(county, Tract)
	require.Error(t, err)

	padded := MustParse("25017", Subdivision)
	c, err := Rollup(padded, County)
	require.NoError(t, err)
	assert.False(t, c.Padded())
	assert.Equal(t, "25017", c.String())
}

func TestCanRollup(t *testing.T) {
	assert.True(t, CanRollup(Block, Tract))
	assert.True(t, CanRollup(Block, County))
	assert.True(t, CanRollup(Subdivision, County))
	assert.True(t, CanRollup(Tract, Tract))
	assert.False(t, CanRollup(Tract, Subdivision))
	assert.False(t, CanRollup(County, Block))
	assert.False(t, CanRollup(Granularity(9), County))
}
