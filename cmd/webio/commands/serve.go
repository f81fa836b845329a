package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/webio/internal/logger"
)

var sweepInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resource core and expose metrics",
	Long: `Build the configured runtime and keep it running until interrupted.

Idle sessions are expired every sweep interval. When metrics are enabled
the Prometheus endpoint is served on metrics.listen.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&sweepInterval, "sweep-interval", 10*time.Second, "interval between idle session sweeps")
}

func runServe(cmd *cobra.Command, args []string) error {
	if sweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, rt, stop, err := start(ctx)
	if err != nil {
		return err
	}
	defer stop()

	metricsDone := make(chan error, 1)
	if rt.MetricsServer != nil {
		go func() {
			metricsDone <- rt.MetricsServer.Start(ctx)
		}()
		logger.Info("Metrics available on %s", cfg.Metrics.Listen)
	}

	logger.Info("webio %s running with %d backends. Press Ctrl+C to stop.", Version, len(rt.Registry.Mounts()))

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, ending %d sessions", len(rt.Manager.Sessions()))
			if rt.MetricsServer == nil {
				return nil
			}
			return waitMetrics(metricsDone)

		case err := <-metricsDone:
			if err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil

		case now := <-ticker.C:
			n, err := rt.Manager.ExpireIdle(now)
			if err != nil {
				logger.Warn("Idle sweep: %v", err)
			}
			if n > 0 {
				logger.Debug("Expired %d idle sessions", n)
			}
		}
	}
}

// waitMetrics waits for the metrics server, which stops with the context.
func waitMetrics(done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return context.DeadlineExceeded
	}
}
