package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/mnemo-go/internal/models"
	"github.com/raphaelgruber/mnemo-go/internal/reconcile"
	"github.com/raphaelgruber/mnemo-go/internal/stream"
)

var (
	watchEvents []string
	watchPings  bool
	watchJSON   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the live event stream",
	Long: `Print events from the backend's live stream as they arrive.

Crash signals are expanded into their synthetic failure events. Output is
formatted for terminals and JSON lines otherwise (or with --json).

Examples:
  mnemo watch
  mnemo watch --event job_update --event ingest_step
  mnemo watch --json | jq .`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVarP(&watchEvents, "event", "e", nil, "only print these event names")
	watchCmd.Flags().BoolVar(&watchPings, "pings", false, "include pong events")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print JSON lines")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn := stream.New(cfg.WSURL,
		stream.WithMaxRetries(cfg.ReconnectMaxRetries),
		stream.WithMetrics(collector),
		stream.WithLogger(logger),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- conn.Run(ctx) }()

	asJSON := watchJSON || !term.IsTerminal(int(os.Stdout.Fd()))
	rec := reconcile.New(reconcile.Options{Logger: logger})
	w := cmd.OutOrStdout()

	for ev := range conn.Events() {
		for _, e := range rec.Apply(ev) {
			if !watchWants(e.Name) {
				continue
			}
			if asJSON {
				if err := printEventJSON(w, e); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(w, formatEvent(e))
		}
	}

	// Events closes once Run returns.
	err := <-errCh
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func watchWants(name string) bool {
	if name == reconcile.EventPong && !watchPings {
		return false
	}
	return len(watchEvents) == 0 || slices.Contains(watchEvents, name)
}

func printEventJSON(w io.Writer, ev reconcile.RawEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

var (
	eventNameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7")).Bold(true)
	eventFailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF005F")).Bold(true)
	eventHintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
)

// formatEvent renders "15:04:05 name [job] key=value ..." with the fields
// sorted by key.
func formatEvent(ev reconcile.RawEvent) string {
	ts := ev.TS
	if t := models.ParseTimestamp(ev.TS); !t.IsZero() {
		ts = t.Local().Format("15:04:05")
	}

	nameStyle := eventNameStyle
	if status, _ := ev.String("status"); strings.EqualFold(status, string(models.JobStatusFailed)) ||
		ev.Name == reconcile.EventPipelineFailed || ev.Name == reconcile.EventIngestErrorSummary {
		nameStyle = eventFailStyle
	}

	parts := []string{eventHintStyle.Render(ts), nameStyle.Render(ev.Name)}
	if ev.JobID != "" {
		parts = append(parts, "["+ev.JobID+"]")
	}

	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		switch k {
		case "event", "job_id", "ts":
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v, ok := ev.String(k)
		if !ok {
			v = string(ev.Fields[k])
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}
