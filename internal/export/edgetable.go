package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commuter-cli/internal/attrs"
	"github.com/sells-group/commuter-cli/internal/graph"
)

// EdgeTableHeader returns the column names of the flat edge table.
func EdgeTableHeader() []string {
	header := []string{"source", "target", FieldWeight, FieldMargin}
	for _, prefix := range []string{"source_", "target_"} {
		for _, c := range nodeColumns {
			header = append(header, prefix+c.name)
		}
	}
	return header
}

// WriteEdgeTable writes one tab-separated row per edge with the attributes of
// both endpoints. Unset values are empty cells.
func WriteEdgeTable(w io.Writer, g *graph.CommuterGraph) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := cw.Write(EdgeTableHeader()); err != nil {
		return eris.Wrap(err, "export: write edge table header")
	}
	for _, row := range g.EdgeTable() {
		if err := cw.Write(edgeRecord(row)); err != nil {
			return eris.Wrapf(err, "export: write edge %s -> %s", row.Source, row.Target)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush edge table")
}

func edgeRecord(row graph.EdgeRow) []string {
	rec := make([]string, 0, 4+2*len(nodeColumns))
	margin := ""
	if row.Margin != nil {
		margin = strconv.FormatInt(*row.Margin, 10)
	}
	rec = append(rec, row.Source, row.Target, strconv.FormatInt(row.Weight, 10), margin)
	rec = appendNode(rec, row.SourceAttrs)
	return appendNode(rec, row.TargetAttrs)
}

func appendNode(rec []string, a attrs.NodeAttributes) []string {
	vals := a.Values()
	for _, c := range nodeColumns {
		rec = append(rec, vals[c.name])
	}
	return rec
}

// Artifacts names the files written by WriteArtifacts.
type Artifacts struct {
	GraphML   string
	EdgeTable string
}

// ArtifactPaths returns the paths WriteArtifacts writes for name under dir.
func ArtifactPaths(dir, name string) Artifacts {
	base := filepath.Join(dir, name+"_commuter_flows")
	return Artifacts{GraphML: base + ".graphml", EdgeTable: base + ".tsv"}
}

// WriteArtifacts writes <name>_commuter_flows.graphml and
// <name>_commuter_flows.tsv under dir, creating dir if needed.
func WriteArtifacts(dir, name string, g *graph.CommuterGraph) (Artifacts, error) {
	if name == "" {
		name = g.Granularity().String()
	}
	paths := ArtifactPaths(dir, name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifacts{}, eris.Wrapf(err, "export: create %s", dir)
	}
	if err := WriteGraphMLFile(paths.GraphML, g); err != nil {
		return Artifacts{}, err
	}
	if err := WriteEdgeTableFile(paths.EdgeTable, g); err != nil {
		return Artifacts{}, err
	}

	zap.L().Info("artifacts written",
		zap.String("component", "export"),
		zap.String("graphml", paths.GraphML),
		zap.String("edge_table", paths.EdgeTable),
		zap.Int("nodes", g.NumNodes()),
		zap.Int("edges", g.NumEdges()),
	)
	return paths, nil
}

// WriteGraphMLFile writes g as GraphML to path.
func WriteGraphMLFile(path string, g *graph.CommuterGraph) error {
	return writeFile(path, func(w io.Writer) error { return WriteGraphML(w, g) })
}

// WriteEdgeTableFile writes the edge table of g to path.
func WriteEdgeTableFile(path string, g *graph.CommuterGraph) error {
	return writeFile(path, func(w io.Writer) error { return WriteEdgeTable(w, g) })
}

// writeFile writes through a temp file in the same directory and renames it
// into place.
func writeFile(path string, fn func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := fn(tmp); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "export: %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", path)
	}
	return eris.Wrapf(os.Rename(tmp.Name(), path), "export: rename %s", path)
}
