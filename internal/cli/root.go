// Package cli provides the command-line interface for mnemo.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/mnemo-go/internal/client"
	"github.com/raphaelgruber/mnemo-go/internal/config"
	"github.com/raphaelgruber/mnemo-go/internal/metrics"
	"github.com/raphaelgruber/mnemo-go/internal/notify"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose  bool
	apiURL   string
	wsURL    string
	logLevel string

	// Global config and backend client
	cfg           config.Config
	logger        *slog.Logger
	closeLog      func() error
	toasts        *notify.Toasts
	collector     *metrics.Collector
	backendClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Terminal dashboard for Gaia Mnemosyne",
	Long: `mnemo watches a Gaia Mnemosyne backend: system health, ingestion jobs,
the knowledge graph and RAG queries, live over the backend's event stream.

Run 'mnemo dashboard' for the interactive view, or use the subcommands for
one-shot queries.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip backend setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		// Load config, flags win over environment
		cfg = config.Load()
		if apiURL != "" {
			cfg.APIURL = apiURL
		}
		if wsURL != "" {
			cfg.WSURL = wsURL
		}
		if logLevel != "" {
			cfg.LogLevel = config.ParseLogLevel(logLevel)
		} else if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		// A full-screen UI owns stderr
		quiet := cmd.Name() == dashboardCmd.Name()
		logger, closeLog = config.SetupLogger(cfg.LogFile, cfg.LogLevel, quiet)
		slog.SetDefault(logger)

		toasts = notify.NewToasts()
		collector = metrics.NewCollector()
		backendClient = client.New(cfg.APIURL,
			client.WithTimeout(cfg.HTTPTimeout),
			client.WithNotifier(toasts),
			client.WithMetrics(collector),
			client.WithLogger(logger),
		)

		logger.Debug("mnemo starting", "version", Version, "api_url", cfg.APIURL, "ws_url", cfg.WSURL)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "backend REST base URL (default $MNEMO_API_URL)")
	rootCmd.PersistentFlags().StringVar(&wsURL, "ws-url", "", "backend websocket base URL (default $MNEMO_WS_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	// Add subcommands
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mnemo version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mnemo %s\n", Version)
	},
}
