package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/commuter-cli/internal/ledger"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded builds",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent builds",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("runs"); err != nil {
			return err
		}
		granularity, _ := cmd.Flags().GetString("granularity")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		lg, err := ledger.Open(cmd.Context(), cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer lg.Close() //nolint:errcheck

		runs, err := lg.List(cmd.Context(), ledger.Filter{
			Granularity: granularity,
			Status:      ledger.Status(status),
			Limit:       limit,
		})
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}
		formatRuns(os.Stdout, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one build as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("runs"); err != nil {
			return err
		}
		lg, err := ledger.Open(cmd.Context(), cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer lg.Close() //nolint:errcheck

		run, err := lg.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeRunJSON(os.Stdout, run)
	},
}

func init() {
	runsListCmd.Flags().String("granularity", "", "only builds at this granularity")
	runsListCmd.Flags().String("status", "", "only builds with this status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 20, "maximum number of builds to show")
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func formatRuns(out io.Writer, runs []ledger.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tGRANULARITY\tSTATES\tSTATUS\tNODES\tEDGES\tWEIGHT\tSTARTED\tDURATION")
	for _, r := range runs {
		states := "all"
		if len(r.Params.States) > 0 {
			states = strings.Join(r.Params.States, ",")
		}
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Params.Granularity,
			states,
			r.Status,
			r.Summary.Nodes,
			r.Summary.Edges,
			r.Summary.TotalWeight,
			r.StartedAt.Format(time.RFC3339),
			dur,
		)
	}
	_ = w.Flush()
}

func writeRunJSON(out io.Writer, run *ledger.Run) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}
