package attrs

import (
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/commuter-cli/internal/flow"
	"github.com/sells-group/commuter-cli/internal/geokey"
)

// Source names in their default application order.
const (
	SourceGazetteer  = "gazetteer"
	SourcePopulation = "population"
	SourceCrosswalk  = "crosswalk"
	SourceFlowNames  = "flow_names"
)

// Row is one keyed attribute record from a reference table.
type Row struct {
	Key   geokey.Key
	Attrs NodeAttributes
}

// Source is a named attribute table. Rows are applied in slice order, so a
// later row for the same key overwrites the fields it defines.
type Source struct {
	Name string
	Rows []Row
}

// Len returns the number of rows in the source.
func (s Source) Len() int { return len(s.Rows) }

// RoleRow carries the attributes a flow row states about each endpoint.
type RoleRow struct {
	Source      geokey.Key
	Target      geokey.Key
	SourceAttrs NodeAttributes
	TargetAttrs NodeAttributes
}

// FromRoles builds a Source from the endpoint attributes of flow rows. The
// target role of every row is applied first, then the source role, each in
// input order, so a key's record is the union over every row and role in
// which it appears.
func FromRoles(name string, rows []RoleRow) Source {
	out := Source{Name: name, Rows: make([]Row, 0, 2*len(rows))}
	for _, r := range rows {
		if !r.TargetAttrs.Empty() {
			out.Rows = append(out.Rows, Row{Key: r.Target, Attrs: r.TargetAttrs})
		}
	}
	for _, r := range rows {
		if !r.SourceAttrs.Empty() {
			out.Rows = append(out.Rows, Row{Key: r.Source, Attrs: r.SourceAttrs})
		}
	}
	return out
}

// Conflict records a field that a later source overwrote with a different value.
type Conflict struct {
	Key      geokey.Key
	Field    string
	Previous string // value before the overwrite
	Value    string // value kept
	Replaced string // source that had set Previous
	Source   string // source that set Value
}

// Merge resolves one attribute record for every endpoint of records.
// Sources are applied in slice order and merged field by field: a source
// overwrites only the fields it defines and leaves the rest intact. Rows for
// keys that are not flow endpoints are ignored. Every endpoint gets an entry,
// possibly with no fields set.
func Merge(records []flow.Record, sources []Source) (map[geokey.Key]NodeAttributes, []Conflict) {
	m := &merger{
		attrs:  make(map[geokey.Key]*NodeAttributes),
		origin: make(map[geokey.Key]map[string]string),
	}
	for _, r := range records {
		m.ensure(r.Source)
		m.ensure(r.Target)
	}

	for _, src := range sources {
		for _, row := range src.Rows {
			if _, ok := m.attrs[row.Key]; !ok {
				continue
			}
			m.apply(src.Name, row.Key, row.Attrs)
		}
	}

	out := make(map[geokey.Key]NodeAttributes, len(m.attrs))
	for k, a := range m.attrs {
		out[k] = *a
	}

	if len(m.conflicts) > 0 {
		log := zap.L().With(zap.String("component", "attrs.merge"))
		for _, c := range m.conflicts {
			log.Debug("attribute conflict resolved by source order",
				zap.String("key", c.Key.String()),
				zap.String("field", c.Field),
				zap.String("previous", c.Previous),
				zap.String("value", c.Value),
				zap.String("replaced_source", c.Replaced),
				zap.String("source", c.Source),
			)
		}
		log.Info("attribute conflicts resolved", zap.Int("count", len(m.conflicts)))
	}

	return out, m.conflicts
}

type merger struct {
	attrs     map[geokey.Key]*NodeAttributes
	origin    map[geokey.Key]map[string]string
	conflicts []Conflict
}

func (m *merger) ensure(k geokey.Key) {
	if _, ok := m.attrs[k]; ok {
		return
	}
	m.attrs[k] = &NodeAttributes{}
	m.origin[k] = make(map[string]string)
}

func (m *merger) apply(src string, k geokey.Key, in NodeAttributes) {
	dst := m.attrs[k]
	mergeField(m, src, k, FieldState, &dst.State, in.State)
	mergeField(m, src, k, FieldCounty, &dst.County, in.County)
	mergeField(m, src, k, FieldSubdivision, &dst.Subdivision, in.Subdivision)
	mergeField(m, src, k, FieldTract, &dst.Tract, in.Tract)
	mergeField(m, src, k, FieldLatitude, &dst.Latitude, in.Latitude)
	mergeField(m, src, k, FieldLongitude, &dst.Longitude, in.Longitude)
	mergeField(m, src, k, FieldPopulation, &dst.Population, in.Population)

	if len(in.AgeBands) == 0 {
		return
	}
	if dst.AgeBands == nil {
		dst.AgeBands = make(map[string]int64, len(in.AgeBands))
	}
	for _, label := range slices.Sorted(maps.Keys(in.AgeBands)) {
		v := in.AgeBands[label]
		if prev, ok := dst.AgeBands[label]; ok && prev != v {
			m.record(src, k, label, prev, v)
		}
		dst.AgeBands[label] = v
		m.origin[k][label] = src
	}
}

func mergeField[T comparable](m *merger, src string, k geokey.Key, field string, dst **T, v *T) {
	if v == nil {
		return
	}
	if *dst != nil && **dst != *v {
		m.record(src, k, field, **dst, *v)
	}
	val := *v
	*dst = &val
	m.origin[k][field] = src
}

func (m *merger) record(src string, k geokey.Key, field string, prev, val any) {
	m.conflicts = append(m.conflicts, Conflict{
		Key:      k,
		Field:    field,
		Previous: fmt.Sprint(prev),
		Value:    fmt.Sprint(val),
		Replaced: m.origin[k][field],
		Source:   src,
	})
}
