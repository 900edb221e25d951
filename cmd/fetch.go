package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/commuter-cli/internal/config"
	"github.com/sells-group/commuter-cli/internal/fetcher"
	"github.com/sells-group/commuter-cli/internal/resilience"
	"github.com/sells-group/commuter-cli/internal/scope"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [flows|gazetteer|lodes]...",
	Short: "Download the raw flow and reference tables",
	Long: "Downloads the ACS commuting-flow workbooks, the national gazetteers and the LODES " +
		"origin-destination files and crosswalks of every state in scope to the configured input paths. " +
		"Files already present are skipped unless --force is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		states := cfg.Build.States
		if cmd.Flags().Changed("states") {
			states, _ = cmd.Flags().GetString("states")
		}
		force, _ := cmd.Flags().GetBool("force")

		results, err := runFetch(cmd.Context(), cfg, args, states, force, nil)
		if err != nil {
			return err
		}
		formatFetchResults(os.Stdout, results)
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("states", "", "comma-separated states whose LODES files to fetch, or \"all\" (default from build.states)")
	fetchCmd.Flags().Bool("force", false, "re-download files that already exist")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(ctx context.Context, c *config.Config, groups []string, states string, force bool, hc *http.Client) ([]fetcher.Result, error) {
	if err := c.Validate("fetch"); err != nil {
		return nil, err
	}
	sc, err := scope.Parse(states)
	if err != nil {
		return nil, err
	}
	items, err := fetcher.Plan(c.Inputs, c.Fetch, groups, sc.States())
	if err != nil {
		return nil, err
	}

	policy := resilience.DefaultPolicy()
	if c.Fetch.MaxAttempts > 0 {
		policy.MaxAttempts = c.Fetch.MaxAttempts
	}
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:   time.Duration(c.Fetch.TimeoutSecs) * time.Second,
		RateLimit: c.Fetch.RateLimit,
		Retry:     policy,
		Client:    hc,
	})
	return fetcher.Run(ctx, f, items, fetcher.Options{Concurrency: c.Fetch.Concurrency, Force: force})
}

func formatFetchResults(out io.Writer, results []fetcher.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GROUP\tSTATUS\tBYTES\tPATH")
	for _, r := range results {
		status := "fetched"
		if r.Skipped {
			status = "present"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Item.Group, status, r.Bytes, r.Item.Path)
	}
	_ = w.Flush()
}
