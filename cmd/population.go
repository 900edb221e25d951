package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/commuter-cli/internal/config"
	"github.com/sells-group/commuter-cli/internal/resilience"
	"github.com/sells-group/commuter-cli/internal/scope"
	"github.com/sells-group/commuter-cli/pkg/census"
)

var populationCmd = &cobra.Command{
	Use:   "population [county|town|tract]...",
	Short: "Fetch ACS population and age bands into population tables",
	Long: "Queries the ACS 5-year estimates for total population and the age bands of every place " +
		"in scope and writes <level>_population.tsv to census.output_dir. Defaults to all three levels.",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		if f.Changed("year") {
			cfg.Census.Year, _ = f.GetInt("year")
		}
		if f.Changed("output-dir") {
			cfg.Census.OutputDir, _ = f.GetString("output-dir")
		}
		states := cfg.Build.States
		if f.Changed("states") {
			states, _ = f.GetString("states")
		}

		written, err := runPopulation(cmd.Context(), cfg, args, states, nil)
		if err != nil {
			return err
		}
		formatPopulationSummary(os.Stdout, written)
		return nil
	},
}

func init() {
	populationCmd.Flags().String("states", "", "comma-separated states (USPS or FIPS), or \"all\" (default from build.states)")
	populationCmd.Flags().Int("year", 0, "ACS 5-year vintage (default from census.year)")
	populationCmd.Flags().String("output-dir", "", "directory for the population tables (default from census.output_dir)")
	rootCmd.AddCommand(populationCmd)
}

// populationFile is one written population table.
type populationFile struct {
	Level string
	Path  string
	Rows  int
}

// newCensusClient builds a census client from config. hc overrides the
// HTTP client when non-nil.
func newCensusClient(c config.CensusConfig, hc *http.Client) *census.Client {
	if hc == nil {
		hc = &http.Client{Timeout: time.Duration(c.TimeoutSecs) * time.Second}
	}
	policy := resilience.DefaultPolicy()
	if c.MaxAttempts > 0 {
		policy.MaxAttempts = c.MaxAttempts
	}
	return census.NewClient(c.Year,
		census.WithHTTPClient(hc),
		census.WithBaseURL(c.BaseURL),
		census.WithKey(c.Key),
		census.WithRateLimit(c.RateLimit),
		census.WithConcurrency(c.Concurrency),
		census.WithRetry(policy),
	)
}

func runPopulation(ctx context.Context, c *config.Config, levels []string, states string, hc *http.Client) ([]populationFile, error) {
	if err := c.Validate("population"); err != nil {
		return nil, err
	}
	if len(levels) == 0 {
		levels = []string{"county", "town", "tract"}
	}
	geos := make([]census.Geography, 0, len(levels))
	for _, l := range levels {
		geo, err := census.ParseGeography(l)
		if err != nil {
			return nil, err
		}
		geos = append(geos, geo)
	}
	sc, err := scope.Parse(states)
	if err != nil {
		return nil, err
	}

	client := newCensusClient(c.Census, hc)
	log := zap.L().With(zap.String("component", "population"), zap.Int("year", c.Census.Year))

	var written []populationFile
	for _, geo := range geos {
		start := time.Now()
		rows, err := client.Fetch(ctx, geo, sc.States())
		if err != nil {
			return written, eris.Wrapf(err, "population: fetch %s", geo.Short())
		}
		path, err := census.WritePopulationFile(c.Census.OutputDir, geo, rows)
		if err != nil {
			return written, err
		}
		log.Info("population table written",
			zap.String("level", geo.Short()),
			zap.String("path", path),
			zap.Int("rows", len(rows)),
			zap.Duration("elapsed", time.Since(start)),
		)
		written = append(written, populationFile{Level: geo.Short(), Path: path, Rows: len(rows)})
	}
	return written, nil
}

func formatPopulationSummary(out io.Writer, files []populationFile) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LEVEL\tROWS\tPATH")
	for _, f := range files {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", f.Level, f.Rows, f.Path)
	}
	_ = w.Flush()
}
