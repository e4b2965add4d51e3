package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/mnemo-go/internal/models"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show backend health and enabled providers",
	Long: `Show the status of the backend and its dependencies, plus which
ingestion providers are enabled.

Exits non-zero when any dependency is not UP.

Examples:
  mnemo health
  mnemo health --api-url http://gaia:7700`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	g, ctx := errgroup.WithContext(context.Background())

	var (
		health    models.Health
		providers models.Providers
	)
	g.Go(func() error {
		var err error
		health, err = backendClient.Health(ctx)
		if err != nil {
			return fmt.Errorf("get health: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		providers, err = backendClient.Providers(ctx)
		if err != nil {
			return fmt.Errorf("get providers: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	printHealth(cmd.OutOrStdout(), health, providers)
	if !health.AllUp() {
		return fmt.Errorf("health degraded: %s", health.Summary())
	}
	return nil
}

func printHealth(w io.Writer, health models.Health, providers models.Providers) {
	fmt.Fprintf(w, "Services\n")
	fmt.Fprintf(w, "═══════════════════\n")
	for _, s := range health.Services() {
		status := s.Status
		if status == "" {
			status = "UNKNOWN"
		}
		fmt.Fprintf(w, "  %-10s %s\n", s.Name, status)
	}

	fmt.Fprintf(w, "\nProviders\n")
	fmt.Fprintf(w, "═══════════════════\n")
	fmt.Fprintf(w, "  %-10s %s\n", "filesystem", enabledLabel(providers.Filesystem.Enabled))
	fmt.Fprintf(w, "  %-10s %s\n", "github", enabledLabel(providers.GitHub.Enabled))
}

func enabledLabel(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
