package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/commuter-cli/internal/config"
	"github.com/sells-group/commuter-cli/internal/db"
	"github.com/sells-group/commuter-cli/internal/export"
	"github.com/sells-group/commuter-cli/internal/geokey"
	"github.com/sells-group/commuter-cli/internal/ledger"
	"github.com/sells-group/commuter-cli/internal/pipeline"
	"github.com/sells-group/commuter-cli/internal/scope"
)

var buildCmd = &cobra.Command{
	Use:   "build <county|town|tract|block>",
	Short: "Build a commuter-flow graph at one granularity",
	Long: "Loads the flow and reference tables for a granularity, builds the graph and writes " +
		"<name>_commuter_flows.graphml and .tsv to the output directory. Optionally loads the graph into PostgreSQL or Neo4j.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyBuildFlags(cmd, cfg); err != nil {
			return err
		}
		toPostgres, _ := cmd.Flags().GetBool("postgres")
		toNeo4j, _ := cmd.Flags().GetBool("neo4j")

		out, err := runBuild(cmd.Context(), cfg, args[0], buildTargets{Postgres: toPostgres, Neo4j: toNeo4j},
			pipeline.NewFileLoader(cfg.Inputs))
		if err != nil {
			return err
		}
		formatBuildSummary(os.Stdout, out)
		return nil
	},
}

func init() {
	f := buildCmd.Flags()
	f.String("states", "", "comma-separated states (USPS or FIPS) to keep, or \"all\" (default from build.states)")
	f.Int64("min-weight", 0, "drop edges lighter than this (default from build.min_weight)")
	f.String("output", "", "output directory (default from output.dir)")
	f.String("name", "", "subfolder of the output directory")
	f.Bool("drop-self-loops", false, "drop edges whose source and target are the same place")
	f.Int("concurrency", 0, "states loaded in parallel (default from build.concurrency)")
	f.Bool("postgres", false, "also load the graph into postgres.database_url")
	f.Bool("neo4j", false, "also merge the graph into neo4j.uri")
	f.Bool("no-ledger", false, "do not record the build in the ledger")
	rootCmd.AddCommand(buildCmd)
}

// applyBuildFlags copies explicitly set flags over the loaded config.
func applyBuildFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	var err error
	if f.Changed("states") {
		c.Build.States, err = f.GetString("states")
	}
	if err == nil && f.Changed("min-weight") {
		c.Build.MinWeight, err = f.GetInt64("min-weight")
	}
	if err == nil && f.Changed("output") {
		c.Output.Dir, err = f.GetString("output")
	}
	if err == nil && f.Changed("name") {
		c.Output.Name, err = f.GetString("name")
	}
	if err == nil && f.Changed("drop-self-loops") {
		c.Build.DropSelfLoops, err = f.GetBool("drop-self-loops")
	}
	if err == nil && f.Changed("concurrency") {
		c.Build.Concurrency, err = f.GetInt("concurrency")
	}
	if err == nil && f.Changed("no-ledger") {
		var off bool
		off, err = f.GetBool("no-ledger")
		c.Ledger.Enabled = c.Ledger.Enabled && !off
	}
	return eris.Wrap(err, "build: read flags")
}

// buildTargets selects the optional database sinks.
type buildTargets struct {
	Postgres bool
	Neo4j    bool
}

// buildOutcome is what a finished build reports.
type buildOutcome struct {
	RunID      string
	Descriptor pipeline.Descriptor
	Scope      scope.Scope
	Result     *pipeline.Result
	Artifacts  []string
	Sinks      []string
	Elapsed    time.Duration
}

func runBuild(ctx context.Context, c *config.Config, name string, targets buildTargets, l pipeline.Loader) (*buildOutcome, error) {
	if err := c.Validate("build"); err != nil {
		return nil, err
	}
	g, err := geokey.ParseGranularity(name)
	if err != nil {
		return nil, err
	}
	d, err := pipeline.Lookup(g)
	if err != nil {
		return nil, err
	}
	sc, err := scope.Parse(c.Build.States)
	if err != nil {
		return nil, err
	}

	out := &buildOutcome{Descriptor: d, Scope: sc}
	start := time.Now()
	log := zap.L().With(zap.String("component", "build"), zap.String("granularity", d.Name))

	var lg *ledger.Ledger
	if c.Ledger.Enabled {
		if lg, err = ledger.Open(ctx, c.Ledger.Path); err != nil {
			return nil, err
		}
		defer lg.Close() //nolint:errcheck

		var states []string
		if !sc.IsAll() {
			states = sc.States()
		}
		run, err := lg.Start(ctx, ledger.Params{Granularity: d.Name, States: states, MinWeight: c.Build.MinWeight})
		if err != nil {
			return nil, err
		}
		out.RunID = run.ID
	}

	fail := func(err error) (*buildOutcome, error) {
		if lg != nil {
			if ferr := lg.Fail(ctx, out.RunID, err); ferr != nil {
				log.Warn("ledger: record failure", zap.Error(ferr))
			}
		}
		return nil, err
	}

	res, err := pipeline.BuildUnits(ctx, d, l, pipeline.Params{
		Scope:         sc,
		MinWeight:     c.Build.MinWeight,
		DropSelfLoops: c.Build.DropSelfLoops,
		Concurrency:   c.Build.Concurrency,
	})
	if err != nil {
		return fail(err)
	}
	out.Result = res

	if out.Artifacts, err = writeOutputs(c.Output, d.Name, res); err != nil {
		return fail(err)
	}

	sinks, closeSinks, err := openSinks(ctx, c, targets)
	if err != nil {
		return fail(err)
	}
	defer closeSinks()
	for _, s := range sinks {
		out.Sinks = append(out.Sinks, s.Name())
	}
	if err := export.WriteAll(ctx, res.Graph, sinks...); err != nil {
		return fail(err)
	}

	out.Elapsed = time.Since(start)
	if lg != nil {
		st := res.Stats
		if err := lg.Complete(ctx, out.RunID, ledger.Summary{
			Nodes:       st.Nodes,
			Edges:       st.Edges,
			TotalWeight: st.TotalWeight,
			Rejected:    st.Rejected,
			Conflicts:   st.Conflicts,
			Artifacts:   out.Artifacts,
		}); err != nil {
			return nil, err
		}
	}
	log.Info("build complete", zap.Duration("elapsed", out.Elapsed), zap.Strings("artifacts", out.Artifacts))
	return out, nil
}

// writeOutputs writes the enabled file artifacts and returns their paths.
func writeOutputs(o config.OutputConfig, name string, res *pipeline.Result) ([]string, error) {
	dir := o.OutputDir()
	if o.GraphML && o.EdgeTable {
		a, err := export.WriteArtifacts(dir, name, res.Graph)
		if err != nil {
			return nil, err
		}
		return []string{a.GraphML, a.EdgeTable}, nil
	}

	paths := export.ArtifactPaths(dir, name)
	var written []string
	if o.GraphML || o.EdgeTable {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "build: create %s", dir)
		}
	}
	if o.GraphML {
		if err := export.WriteGraphMLFile(paths.GraphML, res.Graph); err != nil {
			return nil, err
		}
		written = append(written, paths.GraphML)
	}
	if o.EdgeTable {
		if err := export.WriteEdgeTableFile(paths.EdgeTable, res.Graph); err != nil {
			return nil, err
		}
		written = append(written, paths.EdgeTable)
	}
	return written, nil
}

// openSinks connects the selected database sinks. The returned func
// releases their connections.
func openSinks(ctx context.Context, c *config.Config, t buildTargets) ([]export.Sink, func(), error) {
	var sinks []export.Sink
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if t.Postgres {
		if c.Postgres.DatabaseURL == "" {
			return nil, closeAll, eris.New("build: --postgres needs postgres.database_url")
		}
		pool, err := db.Connect(ctx, c.Postgres.DatabaseURL, 4)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, pool.Close)
		sinks = append(sinks, export.NewPostgresSink(pool, c.Postgres.Schema))
	}
	if t.Neo4j {
		sink, err := export.NewNeo4jSink(ctx, c.Neo4j)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, func() { _ = sink.Close(context.Background()) })
		sinks = append(sinks, sink)
	}
	return sinks, closeAll, nil
}

// formatBuildSummary writes the build counts to w.
func formatBuildSummary(out io.Writer, b *buildOutcome) {
	st := b.Result.Stats
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Granularity:\t%s\n", b.Descriptor.Name)
	_, _ = fmt.Fprintf(w, "States:\t%s\n", b.Scope)
	if b.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", truncateID(b.RunID))
	}
	_, _ = fmt.Fprintf(w, "Units:\t%d\n", st.Units)
	_, _ = fmt.Fprintf(w, "Raw rows:\t%d\n", st.RawRecords)
	_, _ = fmt.Fprintf(w, "  Unparseable:\t%d\n", st.Skipped)
	_, _ = fmt.Fprintf(w, "  Malformed ids:\t%d\n", st.Rejected)
	_, _ = fmt.Fprintf(w, "Attribute conflicts:\t%d\n", st.Conflicts)
	_, _ = fmt.Fprintf(w, "Nodes:\t%d\n", st.Nodes)
	_, _ = fmt.Fprintf(w, "Edges:\t%d\n", st.Edges)
	_, _ = fmt.Fprintf(w, "Total weight:\t%d\n", st.TotalWeight)
	for _, p := range b.Artifacts {
		_, _ = fmt.Fprintf(w, "Wrote:\t%s\n", filepath.Clean(p))
	}
	for _, s := range b.Sinks {
		_, _ = fmt.Fprintf(w, "Loaded:\t%s\n", s)
	}
	if b.Elapsed > 0 {
		_, _ = fmt.Fprintf(w, "Elapsed:\t%s\n", b.Elapsed.Round(time.Millisecond))
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
