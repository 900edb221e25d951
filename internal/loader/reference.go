package loader

import (
	"context"
	"io"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commuter-cli/internal/attrs"
	"github.com/sells-group/commuter-cli/internal/geokey"
)

// ParseGazetteer reads a Census gazetteer file (tab-separated, padded
// headers) whose GEOIDs are at granularity g. Only the internal point is kept.
func ParseGazetteer(ctx context.Context, r io.Reader, g geokey.Granularity) ([]RefRow, Stats, error) {
	var stats Stats
	var rows []RefRow
	var idx map[string]int

	opts := CSVOptions{Delimiter: '\t', LazyQuotes: true, TrimSpace: true}
	err := table(ctx, r, opts, func(header, row []string) error {
		if idx == nil {
			var err error
			if idx, err = columnIndex(header, "GEOID", "INTPTLAT", "INTPTLONG"); err != nil {
				return err
			}
		}
		geoid := field(row, idx, "GEOID")
		if geoid == "" {
			stats.Skipped++
			return nil
		}
		rows = append(rows, RefRow{
			Code: splitCode(geoid, g),
			Attrs: attrs.NodeAttributes{
				Latitude:  parseFloat(field(row, idx, "INTPTLAT")),
				Longitude: parseFloat(field(row, idx, "INTPTLONG")),
			},
		})
		stats.Rows++
		return nil
	})
	if err != nil {
		return nil, stats, eris.Wrap(err, "loader: gazetteer")
	}
	return rows, stats, nil
}

// ParseTigerGazetteer reads internal points from the attribute table of a
// TIGER/Line shapefile whose GEOIDs are at granularity g.
func ParseTigerGazetteer(shpPath string, g geokey.Granularity) ([]RefRow, Stats, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, Stats{}, eris.Wrapf(err, "loader: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = strings.TrimRight(f.String(), "\x00")
	}
	idx, err := columnIndex(header, "GEOID", "INTPTLAT", "INTPTLON")
	if err != nil {
		return nil, Stats{}, eris.Wrapf(err, "loader: shapefile %s", shpPath)
	}

	attr := func(col string) string {
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx[strings.ToLower(col)]), "\x00"))
	}

	var stats Stats
	var rows []RefRow
	for reader.Next() {
		geoid := attr("GEOID")
		if geoid == "" {
			stats.Skipped++
			continue
		}
		rows = append(rows, RefRow{
			Code: splitCode(geoid, g),
			Attrs: attrs.NodeAttributes{
				Latitude:  parseFloat(attr("INTPTLAT")),
				Longitude: parseFloat(attr("INTPTLON")),
			},
		})
		stats.Rows++
	}

	if stats.Skipped > 0 {
		zap.L().Debug("loader: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", stats.Skipped),
		)
	}
	return rows, stats, nil
}

// ParsePopulation reads the population table written by the census client:
// FIPS, Population and one column per age band. Band columns that are absent
// or blank stay unset.
func ParsePopulation(ctx context.Context, r io.Reader, g geokey.Granularity) ([]RefRow, Stats, error) {
	var stats Stats
	var rows []RefRow
	var idx map[string]int

	opts := CSVOptions{Delimiter: '\t', TrimSpace: true}
	err := table(ctx, r, opts, func(header, row []string) error {
		if idx == nil {
			var err error
			if idx, err = columnIndex(header, "FIPS", attrs.FieldPopulation); err != nil {
				return err
			}
		}
		fips := field(row, idx, "FIPS")
		if fips == "" {
			stats.Skipped++
			return nil
		}

		var a attrs.NodeAttributes
		if n, err := ParseInt(field(row, idx, attrs.FieldPopulation)); err == nil {
			a.Population = &n
		}
		for _, band := range attrs.AgeBands {
			n, err := ParseInt(field(row, idx, band))
			if err != nil {
				continue
			}
			if a.AgeBands == nil {
				a.AgeBands = make(map[string]int64, len(attrs.AgeBands))
			}
			a.AgeBands[band] = n
		}

		rows = append(rows, RefRow{Code: splitCode(fips, g), Attrs: a})
		stats.Rows++
		return nil
	})
	if err != nil {
		return nil, stats, eris.Wrap(err, "loader: population")
	}
	return rows, stats, nil
}

// ParseCrosswalk reads a LODES geography crosswalk and rolls its block codes
// up to g, keeping the first row seen for each key. Names are attached at
// every level the crosswalk covers; block centroids only at block granularity.
func ParseCrosswalk(ctx context.Context, r io.Reader, g geokey.Granularity) ([]RefRow, Stats, error) {
	if g == geokey.Subdivision || !g.Valid() {
		return nil, Stats{}, eris.Errorf("loader: crosswalk has no %s level", g)
	}

	required := []string{"tabblk2010", "stname", "ctyname", "trctname"}
	if g == geokey.Block {
		required = append(required, "blklatdd", "blklondd")
	}

	var stats Stats
	var rows []RefRow
	var idx map[string]int
	seen := make(map[string]struct{})

	err := table(ctx, r, CSVOptions{TrimSpace: true}, func(header, row []string) error {
		if idx == nil {
			var err error
			if idx, err = columnIndex(header, required...); err != nil {
				return err
			}
		}

		code := splitCode(field(row, idx, "tabblk2010"), geokey.Block)
		if len(code) > g.Components() {
			code = code[:g.Components()]
		}
		id := strings.Join(code, "")
		if id == "" {
			stats.Skipped++
			return nil
		}
		if _, dup := seen[id]; dup {
			return nil
		}
		seen[id] = struct{}{}

		a := attrs.NodeAttributes{
			State:  name(field(row, idx, "stname")),
			County: name(field(row, idx, "ctyname")),
		}
		if g != geokey.County {
			a.Tract = name(field(row, idx, "trctname"))
		}
		if g == geokey.Block {
			a.Latitude = parseFloat(field(row, idx, "blklatdd"))
			a.Longitude = parseFloat(field(row, idx, "blklondd"))
		}
		rows = append(rows, RefRow{Code: code, Attrs: a})
		stats.Rows++
		return nil
	})
	if err != nil {
		return nil, stats, eris.Wrap(err, "loader: crosswalk")
	}
	return rows, stats, nil
}
