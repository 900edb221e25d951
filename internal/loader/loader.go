// Package loader reads raw Census flow and reference tables into typed rows.
//
// Loaders never canonicalize identifiers. They return the raw component codes
// so the pipeline can count and drop malformed records in one place.
package loader

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/commuter-cli/internal/attrs"
	"github.com/sells-group/commuter-cli/internal/geokey"
)

// ErrMissingColumns is returned when a table lacks a required column.
var ErrMissingColumns = eris.New("missing required columns")

// RawFlow is one origin-destination row before canonicalization.
type RawFlow struct {
	Source      []string // component codes, coarsest first
	Target      []string
	SourceAttrs attrs.NodeAttributes
	TargetAttrs attrs.NodeAttributes
	Weight      int64
	Margin      *int64
}

// RefRow is one reference table row before canonicalization.
type RefRow struct {
	Code  []string
	Attrs attrs.NodeAttributes
}

// Stats counts the rows a parser accepted and skipped.
type Stats struct {
	Rows    int
	Skipped int
}

// Add accumulates another parse's counts.
func (s *Stats) Add(o Stats) {
	s.Rows += o.Rows
	s.Skipped += o.Skipped
}

// ParseInt parses a count that may carry thousands separators, as in "1,234".
func ParseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, eris.New("loader: empty number")
	}
	if strings.HasSuffix(s, ".0") {
		s = strings.TrimSuffix(s, ".0")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "loader: parse int %q", s)
	}
	return n, nil
}

// parseFloat returns nil for blank or unparseable values.
func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// name returns nil for a blank name so that empty cells stay unset.
func name(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// columnIndex maps header names to positions and fails if any required column
// is absent. Header names are trimmed and compared case-insensitively.
func columnIndex(header []string, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := idx[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Wrapf(ErrMissingColumns, "loader: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

// field returns the value at the named column, or "" if the row is short.
func field(row []string, idx map[string]int, col string) string {
	i, ok := idx[strings.ToLower(col)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// splitCode cuts a concatenated code for g. A code that does not align is
// returned whole so canonicalization rejects and counts it.
func splitCode(code string, g geokey.Granularity) []string {
	parts, err := geokey.Split(code, g)
	if err != nil {
		return []string{strings.TrimSpace(code)}
	}
	return parts
}
