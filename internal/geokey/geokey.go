// Package geokey canonicalizes Census FIPS component codes into fixed-width
// hierarchical keys for a target granularity.
//
// A key is the concatenation of its components in hierarchical order. County
// subdivisions and tracts sit on separate branches below the county:
//
//	county       state(2) county(3)                      5 chars
//	subdivision  state(2) county(3) cousub(5)           10 chars
//	tract        state(2) county(3) tract(6)            11 chars
//	block        state(2) county(3) tract(6) block(4)   15 chars
//
// Components finer than the data supplies are padded with a zero sentinel,
// and the key remembers how much of it is real so that a padded key never
// equals a genuinely zero-coded one.
package geokey

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrMalformedIdentifier is returned when raw components cannot be
// canonicalized for the requested granularity.
var ErrMalformedIdentifier = eris.New("malformed geographic identifier")

// ErrUnknownGranularity is returned by ParseGranularity for unrecognized names.
var ErrUnknownGranularity = eris.New("unknown granularity")

// Granularity is the administrative level a graph is built at.
type Granularity int

const (
	County Granularity = iota + 1
	Subdivision
	Tract
	Block
)

// PaddedSuffix marks padded keys in their string form.
const PaddedSuffix = "~"

var layouts = map[Granularity][]int{
	County:      {2, 3},
	Subdivision: {2, 3, 5},
	Tract:       {2, 3, 6},
	Block:       {2, 3, 6, 4},
}

// required is the number of leading components that may never be padded.
const required = 2

// String returns the name used in file names and CLI arguments.
func (g Granularity) String() string {
	switch g {
	case County:
		return "county"
	case Subdivision:
		return "town"
	case Tract:
		return "tract"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// Width returns the total key length for the granularity.
func (g Granularity) Width() int {
	n := 0
	for _, w := range layouts[g] {
		n += w
	}
	return n
}

// Components returns the number of components in a key of this granularity.
func (g Granularity) Components() int {
	return len(layouts[g])
}

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	_, ok := layouts[g]
	return ok
}

// ParseGranularity converts a name like "county", "town" or "tract" into a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "county":
		return County, nil
	case "town", "subdivision", "cousub", "mcd":
		return Subdivision, nil
	case "tract":
		return Tract, nil
	case "block":
		return Block, nil
	default:
		return 0, eris.Wrapf(ErrUnknownGranularity, "geokey: %q (valid: county, town, tract, block)", s)
	}
}

// Key is a canonical fixed-width geographic identifier.
// Keys are comparable and safe to use as map keys.
type Key struct {
	id    string
	known int // leading characters backed by real components
}

// ID returns the fixed-width code, with padding rendered as zeros.
func (k Key) ID() string { return k.id }

// Padded reports whether any trailing component of the key was filled with the sentinel.
func (k Key) Padded() bool { return k.known < len(k.id) }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.id == "" }

// State returns the 2-digit state FIPS prefix.
func (k Key) State() string {
	if len(k.id) < 2 {
		return ""
	}
	return k.id[:2]
}

// String returns the ID, suffixed with PaddedSuffix for padded keys.
func (k Key) String() string {
	if k.Padded() {
		return k.id + PaddedSuffix
	}
	return k.id
}

// Compare orders keys by ID, placing an unpadded key before a padded key with the same ID.
func Compare(a, b Key) int {
	if c := strings.Compare(a.id, b.id); c != 0 {
		return c
	}
	switch {
	case a.known > b.known:
		return -1
	case a.known < b.known:
		return 1
	default:
		return 0
	}
}

// Canonicalize builds a key of granularity g from component codes given in
// hierarchical order. Missing or empty components after the county are padded.
// State codes in the 3-digit form are reduced to 2 digits by dropping a leading zero.
func Canonicalize(components []string, g Granularity) (Key, error) {
	layout, ok := layouts[g]
	if !ok {
		return Key{}, eris.Wrapf(ErrUnknownGranularity, "geokey: granularity %d", int(g))
	}
	if len(components) > len(layout) {
		return Key{}, eris.Wrapf(ErrMalformedIdentifier, "geokey: %d components for %s", len(components), g)
	}

	var b strings.Builder
	b.Grow(g.Width())
	known := 0
	padding := false

	for i, width := range layout {
		var c string
		if i < len(components) {
			c = strings.TrimSpace(components[i])
		}
		if i == 0 {
			s, err := NormalizeState(c)
			if err != nil {
				return Key{}, err
			}
			c = s
		}

		if c == "" {
			if i < required {
				return Key{}, eris.Wrapf(ErrMalformedIdentifier, "geokey: missing component %d for %s", i, g)
			}
			padding = true
			b.WriteString(strings.Repeat("0", width))
			continue
		}
		if padding {
			return Key{}, eris.Wrapf(ErrMalformedIdentifier, "geokey: component %d follows a missing component", i)
		}
		if len(c) != width || !isDigits(c) {
			return Key{}, eris.Wrapf(ErrMalformedIdentifier, "geokey: component %q is not %d digits", c, width)
		}
		b.WriteString(c)
		known += width
	}

	id := b.String()
	if len(id) != g.Width() {
		return Key{}, eris.Wrapf(ErrMalformedIdentifier, "geokey: %q has length %d, want %d", id, len(id), g.Width())
	}
	return Key{id: id, known: known}, nil
}

// NormalizeState validates a state FIPS code and returns its 2-digit form.
// Codes outside [01, 56] (territories, foreign workplaces) are rejected.
func NormalizeState(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) == 3 && code[0] == '0' {
		code = code[1:]
	}
	if len(code) != 2 || !isDigits(code) {
		return "", eris.Wrapf(ErrMalformedIdentifier, "geokey: state code %q", code)
	}
	n, _ := strconv.Atoi(code)
	if n < 1 || n > 56 {
		return "", eris.Wrapf(ErrMalformedIdentifier, "geokey: state code %q out of range", code)
	}
	return code, nil
}

// Split cuts a concatenated code into the components of g's layout.
// The code may stop at any component boundary; a 5-digit county code split
// for Subdivision yields two components.
func Split(code string, g Granularity) ([]string, error) {
	layout, ok := layouts[g]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownGranularity, "geokey: granularity %d", int(g))
	}
	code = strings.TrimSpace(code)

	var parts []string
	pos := 0
	for _, width := range layout {
		if pos == len(code) {
			break
		}
		if pos+width > len(code) {
			return nil, eris.Wrapf(ErrMalformedIdentifier, "geokey: %q does not align with %s layout", code, g)
		}
		parts = append(parts, code[pos:pos+width])
		pos += width
	}
	if pos != len(code) || len(parts) < required {
		return nil, eris.Wrapf(ErrMalformedIdentifier, "geokey: %q does not align with %s layout", code, g)
	}
	return parts, nil
}

// Parse canonicalizes a concatenated code for g. Shorter codes aligned on a
// component boundary are padded.
func Parse(code string, g Granularity) (Key, error) {
	parts, err := Split(code, g)
	if err != nil {
		return Key{}, err
	}
	return Canonicalize(parts, g)
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(code string, g Granularity) Key {
	k, err := Parse(code, g)
	if err != nil {
		panic(err)
	}
	return k
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Granularity returns the level implied by the key's width.
func (k Key) Granularity() Granularity {
	for g := County; g <= Block; g++ {
		if g.Width() == len(k.id) {
			return g
		}
	}
	return 0
}

// CanRollup reports whether keys at from truncate to keys at to. The coarser
// layout must be a prefix of the finer one, so a tract rolls up to a county
// but not to a subdivision.
func CanRollup(from, to Granularity) bool {
	fine, ok := layouts[from]
	if !ok {
		return false
	}
	coarse, ok := layouts[to]
	if !ok || len(coarse) > len(fine) {
		return false
	}
	for i, w := range coarse {
		if fine[i] != w {
			return false
		}
	}
	return true
}

// Rollup truncates k to the coarser granularity.
func Rollup(k Key, coarser Granularity) (Key, error) {
	from := k.Granularity()
	if !from.Valid() {
		return Key{}, eris.Wrapf(ErrMalformedIdentifier, "geokey: cannot roll up %q", k.id)
	}
	if !coarser.Valid() {
		return Key{}, eris.Wrapf(ErrUnknownGranularity, "geokey: granularity %d", int(coarser))
	}
	if !CanRollup(from, coarser) {
		return Key{}, eris.Errorf("geokey: %s does not roll up to %s", from, coarser)
	}
	width := coarser.Width()
	return Key{id: k.id[:width], known: min(k.known, width)}, nil
}
