package loader

import (
	"context"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/commuter-cli/internal/attrs"
	"github.com/sells-group/commuter-cli/internal/geokey"
)

// CommutingFlowsTitleRows is the number of title and header rows above the
// data in the ACS commuting-flow workbooks.
const CommutingFlowsTitleRows = 7

// commutingLayout gives the column positions of one endpoint in an ACS
// commuting-flow workbook.
type commutingLayout struct {
	codes []int // state, county[, subdivision]
	state int
	name  []int // county[, subdivision] names
}

type commutingSchema struct {
	source, target commutingLayout
	weight, margin int
}

var commutingSchemas = map[geokey.Granularity]commutingSchema{
	// table1: county to county
	geokey.County: {
		source: commutingLayout{codes: []int{0, 1}, state: 2, name: []int{3}},
		target: commutingLayout{codes: []int{4, 5}, state: 6, name: []int{7}},
		weight: 8,
		margin: 9,
	},
	// table3: subdivision to subdivision, with county rows where a state has
	// no minor civil divisions
	geokey.Subdivision: {
		source: commutingLayout{codes: []int{0, 1, 2}, state: 3, name: []int{4, 5}},
		target: commutingLayout{codes: []int{6, 7, 8}, state: 9, name: []int{10, 11}},
		weight: 12,
		margin: 13,
	},
}

// LoadCommutingFlows reads an ACS commuting-flow workbook for g.
func LoadCommutingFlows(path string, g geokey.Granularity) ([]RawFlow, Stats, error) {
	rows, err := ReadXLSX(path, CommutingFlowsTitleRows)
	if err != nil {
		return nil, Stats{}, eris.Wrapf(err, "loader: commuting flows %s", path)
	}
	return ParseCommutingFlows(rows, g)
}

// ParseCommutingFlows converts ACS commuting-flow data rows (title rows
// already removed) into raw flows. Rows without a weight, such as footnotes,
// are skipped. A blank subdivision code is left empty for the canonicalizer
// to pad. Names are the endpoint's own names; blank names stay unset.
// A non-empty table in which no row reaches the weight column is not a
// commuting-flow table and fails with ErrMissingColumns.
func ParseCommutingFlows(rows [][]string, g geokey.Granularity) ([]RawFlow, Stats, error) {
	schema, ok := commutingSchemas[g]
	if !ok {
		return nil, Stats{}, eris.Errorf("loader: no commuting-flow table at %s granularity", g)
	}

	if len(rows) > 0 {
		widest := 0
		for _, row := range rows {
			widest = max(widest, len(row))
		}
		if widest <= schema.weight {
			return nil, Stats{}, eris.Wrapf(ErrMissingColumns,
				"loader: commuting flows need %d columns, widest row has %d", schema.margin+1, widest)
		}
	}

	var stats Stats
	flows := make([]RawFlow, 0, len(rows))
	for _, row := range rows {
		weight, err := ParseInt(cell(row, schema.weight))
		if err != nil {
			stats.Skipped++
			continue
		}
		rf := RawFlow{
			Source:      codes(row, schema.source),
			Target:      codes(row, schema.target),
			SourceAttrs: names(row, schema.source, g),
			TargetAttrs: names(row, schema.target, g),
			Weight:      weight,
		}
		if m, err := ParseInt(cell(row, schema.margin)); err == nil {
			rf.Margin = &m
		}
		flows = append(flows, rf)
		stats.Rows++
	}
	return flows, stats, nil
}

// ParseLODESOD reads a LODES origin-destination CSV. Home blocks become
// sources and work blocks targets, weighted by total jobs (S000).
func ParseLODESOD(ctx context.Context, r io.Reader) ([]RawFlow, Stats, error) {
	var stats Stats
	var flows []RawFlow
	var idx map[string]int

	err := table(ctx, r, CSVOptions{TrimSpace: true}, func(header, row []string) error {
		if idx == nil {
			var err error
			if idx, err = columnIndex(header, "w_geocode", "h_geocode", "S000"); err != nil {
				return err
			}
		}
		weight, err := ParseInt(field(row, idx, "S000"))
		if err != nil {
			stats.Skipped++
			return nil
		}
		flows = append(flows, RawFlow{
			Source: splitCode(field(row, idx, "h_geocode"), geokey.Block),
			Target: splitCode(field(row, idx, "w_geocode"), geokey.Block),
			Weight: weight,
		})
		stats.Rows++
		return nil
	})
	if err != nil {
		return nil, stats, eris.Wrap(err, "loader: lodes od")
	}
	return flows, stats, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}

func codes(row []string, l commutingLayout) []string {
	out := make([]string, len(l.codes))
	for i, c := range l.codes {
		out[i] = cell(row, c)
	}
	return out
}

func names(row []string, l commutingLayout, g geokey.Granularity) attrs.NodeAttributes {
	a := attrs.NodeAttributes{
		State:  name(cell(row, l.state)),
		County: name(cell(row, l.name[0])),
	}
	if g == geokey.Subdivision {
		a.Subdivision = name(cell(row, l.name[1]))
	}
	return a
}
