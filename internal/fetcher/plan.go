package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/commuter-cli/internal/config"
	"github.com/sells-group/commuter-cli/internal/geokey"
)

// Download groups.
const (
	GroupFlows     = "flows"
	GroupGazetteer = "gazetteer"
	GroupLODES     = "lodes"
)

// Groups lists every download group in fetch order.
func Groups() []string { return []string{GroupFlows, GroupGazetteer, GroupLODES} }

// Item is one file to fetch.
type Item struct {
	Group string
	URL   string
	Path  string // local destination
	Entry string // archive member extracted to Path; empty when URL is the file itself
}

// Plan lists the files the configured inputs read, for the given groups and
// states (FIPS codes). Destinations are the paths the loaders open.
// Gazetteer tables configured as shapefiles are not fetched.
func Plan(inputs config.InputsConfig, src config.FetchConfig, groups []string, states []string) ([]Item, error) {
	if len(groups) == 0 {
		groups = Groups()
	}
	var items []Item
	for _, g := range groups {
		switch g {
		case GroupFlows:
			for _, path := range []string{inputs.CountyFlows, inputs.TownFlows} {
				if path == "" {
					continue
				}
				items = append(items, Item{
					Group: g,
					URL:   joinURL(src.FlowsBaseURL, filepath.Base(path)),
					Path:  path,
				})
			}

		case GroupGazetteer:
			levels := make([]string, 0, len(inputs.Gazetteer))
			for level := range inputs.Gazetteer {
				levels = append(levels, level)
			}
			slices.Sort(levels)
			for _, level := range levels {
				path := inputs.Gazetteer[level]
				if path == "" || !strings.EqualFold(filepath.Ext(path), ".txt") {
					continue
				}
				base := filepath.Base(path)
				items = append(items, Item{
					Group: g,
					URL:   joinURL(src.GazetteerBaseURL, strings.TrimSuffix(base, filepath.Ext(base))+".zip"),
					Path:  path,
					Entry: base,
				})
			}

		case GroupLODES:
			for _, fips := range states {
				st, ok := geokey.StateByFIPS(fips)
				if !ok {
					return nil, eris.Errorf("fetcher: unknown state %q", fips)
				}
				abbr := strings.ToLower(st.Abbr)
				for _, part := range []string{"aux", "main"} {
					name := fmt.Sprintf("%s_od_%s_%s_%d.csv.gz", abbr, part, inputs.LODESJobType, inputs.LODESYear)
					items = append(items, Item{
						Group: g,
						URL:   joinURL(src.LODESBaseURL, abbr, "od", name),
						Path:  filepath.Join(inputs.LODESDir, abbr, "od", name),
					})
				}
				xwalk := abbr + "_xwalk.csv.gz"
				items = append(items, Item{
					Group: g,
					URL:   joinURL(src.LODESBaseURL, abbr, xwalk),
					Path:  filepath.Join(inputs.LODESDir, abbr, xwalk),
				})
			}

		default:
			return nil, eris.Errorf("fetcher: unknown group %q (valid: %s)", g, strings.Join(Groups(), ", "))
		}
	}
	return items, nil
}

func joinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

// Options controls Run.
type Options struct {
	Concurrency int
	Force       bool // re-download files that already exist
}

// Result reports one fetched item.
type Result struct {
	Item    Item
	Bytes   int64
	Skipped bool // destination already present
}

// Run downloads items with at most opts.Concurrency downloads in flight.
// Results are returned in item order. The first failure cancels the rest.
func Run(ctx context.Context, f Fetcher, items []Item, opts Options) ([]Result, error) {
	log := zap.L().With(zap.String("component", "fetcher"))
	results := make([]Result, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.Concurrency))
	for i, it := range items {
		g.Go(func() error {
			results[i].Item = it
			if !opts.Force {
				if _, err := os.Stat(it.Path); err == nil {
					results[i].Skipped = true
					log.Debug("already present, skipping", zap.String("path", it.Path))
					return nil
				}
			}

			n, err := fetchItem(gctx, f, it)
			if err != nil {
				return eris.Wrapf(err, "fetcher: %s", it.Path)
			}
			results[i].Bytes = n
			log.Info("fetched",
				zap.String("group", it.Group),
				zap.String("path", it.Path),
				zap.Int64("bytes", n),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func fetchItem(ctx context.Context, f Fetcher, it Item) (int64, error) {
	if it.Entry == "" {
		return f.DownloadToFile(ctx, it.URL, it.Path)
	}

	archive := it.Path + ".zip"
	n, err := f.DownloadToFile(ctx, it.URL, archive)
	if err != nil {
		return n, err
	}
	defer os.Remove(archive) //nolint:errcheck

	extracted, err := ExtractZIPFile(archive, it.Entry, filepath.Dir(it.Path))
	if err != nil {
		return n, err
	}
	if extracted != it.Path {
		if err := os.Rename(extracted, it.Path); err != nil {
			return n, eris.Wrap(err, "rename extracted file")
		}
	}
	return n, nil
}
