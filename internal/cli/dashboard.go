package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/mnemo-go/internal/dashboard"
	"github.com/raphaelgruber/mnemo-go/internal/prefs"
	"github.com/raphaelgruber/mnemo-go/internal/server"
	"github.com/raphaelgruber/mnemo-go/internal/stream"
	"github.com/raphaelgruber/mnemo-go/internal/tui"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the interactive dashboard",
	Long: `Open the interactive terminal dashboard.

The dashboard keeps a live connection to the backend's event stream,
reconnecting with backoff, and polls health and ingestion metrics.
Logs go to the log file only while the dashboard is open.

Examples:
  mnemo dashboard
  mnemo dashboard --api-url http://gaia:7700 --ws-url ws://gaia:7700
  MNEMO_METRICS_ADDR=:9108 mnemo dashboard`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var session *dashboard.Session
	conn := stream.New(cfg.WSURL,
		stream.WithMaxRetries(cfg.ReconnectMaxRetries),
		stream.WithMetrics(collector),
		stream.WithLogger(logger),
		stream.OnReconnect(func() { session.Resync() }),
	)
	session = dashboard.New(dashboard.Options{
		Backend:         backendClient,
		Events:          conn.Events(),
		Status:          conn.Status(),
		Toasts:          toasts,
		WatchdogTimeout: cfg.WatchdogTimeout,
		Metrics:         collector,
		Logger:          logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := conn.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			// The dashboard stays up on REST alone.
			logger.Error("event stream stopped", "error", err)
			toasts.Notify("Live updates stopped: " + err.Error())
		}
		return nil
	})
	g.Go(func() error {
		if err := session.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if cfg.MetricsAddr != "" {
		srv := server.New(cfg.MetricsAddr, collector.Handler(), logger)
		g.Go(func() error {
			if err := srv.Run(gctx); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
			return nil
		})
	}

	uiErr := tui.Run(session, prefs.NewStore(cfg.PrefsFile))
	stop()

	if err := g.Wait(); err != nil {
		return err
	}
	return uiErr
}
