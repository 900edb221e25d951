package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/commuter-cli/internal/pipeline"
)

var granularitiesCmd = &cobra.Command{
	Use:   "granularities",
	Short: "List the granularities a graph can be built at",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatDescriptors(os.Stdout, pipeline.Descriptors())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(granularitiesCmd)
}

func formatDescriptors(out io.Writer, ds []pipeline.Descriptor) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tFLOWS\tUNITS\tREFERENCES\tDESCRIPTION")
	for _, d := range ds {
		_, _ = fmt.Fprintf(w, "%s\t%s@%s\t%s\t%s\t%s\n",
			d.Name, d.Flows.Kind, d.Flows.Level, d.Flows.Units,
			strings.Join(d.SourceOrder(), ","), d.Description)
	}
	_ = w.Flush()
}
