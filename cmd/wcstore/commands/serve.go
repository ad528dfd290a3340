package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/internal/telemetry"
	"github.com/marmos91/wcstore/pkg/api"
	"github.com/marmos91/wcstore/pkg/api/handlers"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/wcstore/pkg/metrics/prometheus"
)

var (
	servePort int
	serveRoot string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health probes and metrics",
	Long: `Open the configured database and pristine store and serve the status
endpoints until interrupted.

Endpoints:
  GET /health         Liveness probe
  GET /health/ready   Readiness probe
  GET /health/stores  Database and pristine store health
  GET /metrics        Prometheus metrics (when metrics.enabled is set)

Examples:
  # Serve on the configured metrics port
  wcstore serve

  # Serve with debug logging on another port
  WCSTORE_LOGGING_LEVEL=DEBUG wcstore serve --port 9191`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default: metrics.port)")
	serveCmd.Flags().StringVarP(&serveRoot, "root", "C", "", "Working copy to open at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdutil.SignalContext()
	defer cancel()

	rt, err := cmdutil.OpenRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			logger.Error("shutdown error", logger.Err(err))
		}
	}()

	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", rt.Config.Telemetry.Endpoint, "sample_rate", rt.Config.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", rt.Config.Telemetry.Profiling.Endpoint)
	}

	if serveRoot != "" {
		abspath, err := cmdutil.Abspath(serveRoot)
		if err != nil {
			return err
		}
		if _, err := rt.DB.Open(ctx, abspath); err != nil {
			return fmt.Errorf("open working copy: %w", err)
		}
		logger.Info("Working copy opened", logger.KeyWCRoot, abspath)
	}

	port := servePort
	if port == 0 {
		port = rt.Config.Metrics.Port
	}
	server := api.NewServer(api.Config{Port: port}, handlers.Components{
		Database: rt.DB.Store(),
		Pristine: rt.Pristine,
		Kevent:   rt.Kevent,
	})

	fmt.Fprintf(os.Stderr, "wcstore %s serving on :%d\n", Version, server.Port())
	return server.Start(ctx)
}
