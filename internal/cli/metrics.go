package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/mnemo-go/internal/metrics"
	"github.com/raphaelgruber/mnemo-go/internal/models"
)

var (
	metricsJobID    string
	metricsDetailed bool
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show ingestion metrics",
	Long: `Show the ingestion metrics of the latest run, or of a given job.

With --detailed, also print the client's request statistics for this run.

Examples:
  mnemo metrics
  mnemo metrics --job 3b0c9a52
  mnemo metrics --detailed`,
	Args: cobra.NoArgs,
	RunE: runMetrics,
}

func init() {
	metricsCmd.Flags().StringVar(&metricsJobID, "job", "", "show metrics for a specific job")
	metricsCmd.Flags().BoolVar(&metricsDetailed, "detailed", false, "show client request statistics")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	m, err := backendClient.IngestionMetrics(context.Background(), metricsJobID)
	if err != nil {
		return fmt.Errorf("get ingestion metrics: %w", err)
	}

	printIngestionMetrics(cmd.OutOrStdout(), m, metricsJobID)
	if metricsDetailed {
		fmt.Fprintln(cmd.OutOrStdout())
		printClientStats(cmd.OutOrStdout(), collector.Snapshot())
	}
	return nil
}

func printIngestionMetrics(w io.Writer, m models.IngestionMetrics, jobID string) {
	title := "Ingestion Metrics (latest run)"
	if jobID != "" {
		title = fmt.Sprintf("Ingestion Metrics (job %s)", jobID)
	}
	fmt.Fprintf(w, "%s\n", title)
	fmt.Fprintf(w, "═══════════════════════════════════════\n")
	fmt.Fprintf(w, "Documents:     %d\n", m.Documents)
	fmt.Fprintf(w, "Chunks:        %d\n", m.Chunks)
	fmt.Fprintf(w, "Embeddings:    %d\n", m.Embeddings)
	fmt.Fprintf(w, "Qdrant writes: %d\n", m.QdrantWrites)
	fmt.Fprintf(w, "Duration:      %.1fs\n", float64(m.DurationMs)/1000)
}

// printClientStats displays the request statistics of this process.
func printClientStats(w io.Writer, snap metrics.Snapshot) {
	fmt.Fprintf(w, "Client Statistics (this run)\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(w, "Uptime: %.1f seconds\n", snap.UptimeSeconds)

	for _, op := range snap.Operations {
		fmt.Fprintf(w, "\n%s:\n", op.Name)
		printOpStats(w, op)
	}

	if len(snap.Events) > 0 || snap.Malformed > 0 {
		fmt.Fprintf(w, "\nStream events:\n")
		names := make([]string, 0, len(snap.Events))
		for name := range snap.Events {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-22s %d\n", name, snap.Events[name])
		}
		fmt.Fprintf(w, "  %-22s %d\n", "malformed", snap.Malformed)
		fmt.Fprintf(w, "  %-22s %d\n", "reconnects", snap.Reconnects)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Calls: %d, Failures: %d, Total: %dms\n", op.Count, op.Failures, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}
