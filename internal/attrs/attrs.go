// Package attrs merges per-node attributes from reference tables and from the
// named endpoints of flow rows.
//
// Every field is optional. A nil field is unset, which is distinct from a zero
// population or an empty name, and is never filled with a default.
package attrs

import (
	"maps"
	"strconv"
)

// Age band labels in published order.
const (
	BandUnder18 = "<18"
	Band18to24  = "18-24"
	Band25to29  = "25-29"
	Band30to34  = "30-34"
	Band35to39  = "35-39"
	Band40to44  = "40-44"
	Band45to49  = "45-49"
	Band50to54  = "50-54"
	Band55to59  = "55-59"
	Band60to64  = "60-64"
	Band65Plus  = "65+"
)

// AgeBands lists every band label in published order.
var AgeBands = []string{
	BandUnder18, Band18to24, Band25to29, Band30to34, Band35to39, Band40to44,
	Band45to49, Band50to54, Band55to59, Band60to64, Band65Plus,
}

// Field names used for conflict reporting and serialization.
const (
	FieldState       = "state"
	FieldCounty      = "county"
	FieldSubdivision = "town"
	FieldTract       = "tract"
	FieldLatitude    = "latitude"
	FieldLongitude   = "longitude"
	FieldPopulation  = "Population"
)

// NodeAttributes holds the optional attributes attached to a graph node.
type NodeAttributes struct {
	State       *string
	County      *string
	Subdivision *string
	Tract       *string
	Latitude    *float64
	Longitude   *float64
	Population  *int64
	AgeBands    map[string]int64 // only bands a source defined
}

// Empty reports whether no field is set.
func (a NodeAttributes) Empty() bool {
	return a.State == nil && a.County == nil && a.Subdivision == nil && a.Tract == nil &&
		a.Latitude == nil && a.Longitude == nil && a.Population == nil && len(a.AgeBands) == 0
}

// Clone returns a deep copy.
func (a NodeAttributes) Clone() NodeAttributes {
	return NodeAttributes{
		State:       clonePtr(a.State),
		County:      clonePtr(a.County),
		Subdivision: clonePtr(a.Subdivision),
		Tract:       clonePtr(a.Tract),
		Latitude:    clonePtr(a.Latitude),
		Longitude:   clonePtr(a.Longitude),
		Population:  clonePtr(a.Population),
		AgeBands:    maps.Clone(a.AgeBands),
	}
}

// Band returns the count for an age band and whether it is set.
func (a NodeAttributes) Band(label string) (int64, bool) {
	v, ok := a.AgeBands[label]
	return v, ok
}

// Values flattens the set fields into name/value strings keyed by their
// serialized attribute names. Unset fields are absent from the map.
func (a NodeAttributes) Values() map[string]string {
	out := make(map[string]string)
	putString(out, FieldState, a.State)
	putString(out, FieldCounty, a.County)
	putString(out, FieldSubdivision, a.Subdivision)
	putString(out, FieldTract, a.Tract)
	if a.Latitude != nil {
		out[FieldLatitude] = FormatFloat(*a.Latitude)
	}
	if a.Longitude != nil {
		out[FieldLongitude] = FormatFloat(*a.Longitude)
	}
	if a.Population != nil {
		out[FieldPopulation] = strconv.FormatInt(*a.Population, 10)
	}
	for label, v := range a.AgeBands {
		out[label] = strconv.FormatInt(v, 10)
	}
	return out
}

// FormatFloat renders a coordinate with the shortest exact representation.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// String returns a pointer to s.
func String(s string) *string { return &s }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int64) *int64 { return &v }

func putString(m map[string]string, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
