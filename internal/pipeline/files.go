package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commuter-cli/internal/attrs"
	"github.com/sells-group/commuter-cli/internal/config"
	"github.com/sells-group/commuter-cli/internal/geokey"
	"github.com/sells-group/commuter-cli/internal/loader"
)

// FileLoader loads tables from the local paths in the inputs config.
// A reference table whose path is unset or absent is skipped, leaving its
// fields unset on every node. Flow tables are required.
type FileLoader struct {
	Inputs config.InputsConfig
}

// NewFileLoader creates a FileLoader.
func NewFileLoader(inputs config.InputsConfig) *FileLoader {
	return &FileLoader{Inputs: inputs}
}

// Shared implements Loader.
func (f *FileLoader) Shared(ctx context.Context, d Descriptor) ([]Table, error) {
	var tables []Table
	for _, ref := range d.References {
		if ref.PerUnit {
			continue
		}
		level, err := geokey.ParseGranularity(ref.Level)
		if err != nil {
			return nil, err
		}

		var path string
		switch ref.Source {
		case attrs.SourceGazetteer:
			path = f.Inputs.Gazetteer[level.String()]
		case attrs.SourcePopulation:
			path = f.Inputs.Population[level.String()]
		default:
			return nil, eris.Errorf("pipeline: %s has no national table", ref.Source)
		}
		if !f.available(ref, path) {
			continue
		}

		rows, stats, err := f.readReference(ctx, ref.Source, path, level)
		if err != nil {
			return nil, err
		}
		logLoaded(ref.Source, path, stats)
		tables = append(tables, Table{Source: ref.Source, Rows: rows})
	}
	return tables, nil
}

// Unit implements Loader.
func (f *FileLoader) Unit(ctx context.Context, d Descriptor, name string) (Unit, error) {
	u := Unit{Name: name}

	switch d.Flows.Kind {
	case KindACSCommuting:
		path := f.Inputs.CountyFlows
		if d.FlowLevel() == geokey.Subdivision {
			path = f.Inputs.TownFlows
		}
		flows, stats, err := loader.LoadCommutingFlows(path, d.FlowLevel())
		if err != nil {
			return Unit{}, err
		}
		logLoaded("flows", path, stats)
		u.Flows, u.Skipped = flows, stats.Skipped

	case KindLODESOD:
		paths, err := f.LODESFiles(name)
		if err != nil {
			return Unit{}, err
		}
		for _, path := range paths {
			flows, stats, err := f.readLODES(ctx, path)
			if err != nil {
				return Unit{}, err
			}
			logLoaded("flows", path, stats)
			u.Flows = append(u.Flows, flows...)
			u.Skipped += stats.Skipped
		}
	}

	for _, ref := range d.References {
		if !ref.PerUnit {
			continue
		}
		if ref.Source != attrs.SourceCrosswalk {
			return Unit{}, eris.Errorf("pipeline: %s has no per-state table", ref.Source)
		}
		path := f.CrosswalkFile(name)
		if !f.available(ref, path) {
			continue
		}
		rows, stats, err := f.readReference(ctx, ref.Source, path, d.Granularity())
		if err != nil {
			return Unit{}, err
		}
		logLoaded(ref.Source, path, stats)
		u.References = append(u.References, Table{Source: ref.Source, Rows: rows})
		u.Skipped += stats.Skipped
	}
	return u, nil
}

// LODESFiles returns the origin-destination files of a state, sorted by name.
// Both the in-state (main) and cross-state (aux) parts are included.
func (f *FileLoader) LODESFiles(state string) ([]string, error) {
	pattern := filepath.Join(f.Inputs.LODESDir, state, "od",
		fmt.Sprintf("%s_od_*_%s_%d.csv.gz", state, f.Inputs.LODESJobType, f.Inputs.LODESYear))
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: glob %s", pattern)
	}
	if len(paths) == 0 {
		return nil, eris.Errorf("pipeline: no LODES files match %s", pattern)
	}
	slices.Sort(paths)
	return paths, nil
}

// CrosswalkFile returns the path of a state's LODES geography crosswalk.
func (f *FileLoader) CrosswalkFile(state string) string {
	return filepath.Join(f.Inputs.LODESDir, state, state+"_xwalk.csv.gz")
}

func (f *FileLoader) available(ref Reference, path string) bool {
	if path == "" {
		zap.L().Info("reference table not configured, skipping",
			zap.String("source", ref.Source), zap.String("level", ref.Level))
		return false
	}
	if _, err := os.Stat(path); err != nil {
		zap.L().Warn("reference table not found, skipping",
			zap.String("source", ref.Source), zap.String("path", path))
		return false
	}
	return true
}

func (f *FileLoader) readLODES(ctx context.Context, path string) ([]loader.RawFlow, loader.Stats, error) {
	rc, err := loader.Open(path, loader.OpenOptions{Encoding: f.Inputs.Encoding})
	if err != nil {
		return nil, loader.Stats{}, err
	}
	defer func() { _ = rc.Close() }()

	flows, stats, err := loader.ParseLODESOD(ctx, rc)
	if err != nil {
		return nil, stats, eris.Wrapf(err, "pipeline: %s", path)
	}
	return flows, stats, nil
}

func (f *FileLoader) readReference(ctx context.Context, source, path string, level geokey.Granularity) ([]loader.RefRow, loader.Stats, error) {
	if source == attrs.SourceGazetteer && strings.HasSuffix(strings.ToLower(path), ".shp") {
		return loader.ParseTigerGazetteer(path, level)
	}

	var opts loader.OpenOptions
	if source == attrs.SourceCrosswalk {
		opts.Encoding = f.Inputs.Encoding
	}
	rc, err := loader.Open(path, opts)
	if err != nil {
		return nil, loader.Stats{}, err
	}
	defer func() { _ = rc.Close() }()

	var rows []loader.RefRow
	var stats loader.Stats
	switch source {
	case attrs.SourceGazetteer:
		rows, stats, err = loader.ParseGazetteer(ctx, rc, level)
	case attrs.SourcePopulation:
		rows, stats, err = loader.ParsePopulation(ctx, rc, level)
	case attrs.SourceCrosswalk:
		rows, stats, err = loader.ParseCrosswalk(ctx, rc, level)
	default:
		err = eris.Errorf("pipeline: unknown source %q", source)
	}
	if err != nil {
		return nil, stats, eris.Wrapf(err, "pipeline: %s", path)
	}
	return rows, stats, nil
}

func logLoaded(table, path string, stats loader.Stats) {
	zap.L().Debug("table loaded",
		zap.String("component", "pipeline"),
		zap.String("table", table),
		zap.String("path", path),
		zap.Int("rows", stats.Rows),
		zap.Int("skipped", stats.Skipped),
	)
}
