package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lakegate/internal/logger"
)

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline on a schedule",
	Long: `Runs the scheduler until interrupted: a pipeline run every
pipeline.interval, reconciliation of stale sources and pruning of run history.

When a drop directory is configured, files landing in it trigger a run
immediately. When a metrics address is set, Prometheus metrics are served
at /metrics.`,
	Args:        cobra.NoArgs,
	Annotations: needsServices(),
	RunE:        runServe,
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "listen address for /metrics (overrides monitor.metrics_addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Scheduler == nil {
		return errors.New("scheduler not configured")
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	addr := metricsAddr
	if addr == "" && services.Config != nil {
		addr = services.Config.Monitor.MetricsAddr
	}
	if addr != "" && services.Metrics != nil {
		srv := newMetricsServer(addr, services.Metrics)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		cmd.Printf("Serving metrics on %s/metrics\n", addr)
	}

	if services.DropWatch != nil {
		landed, err := services.DropWatch(ctx)
		if err != nil {
			return fmt.Errorf("watch drop directory: %w", err)
		}
		go func() {
			for path := range landed {
				logger.With(logger.FieldKey, path).Info("file landed, triggering run")
				services.Scheduler.Trigger()
			}
		}()
	}

	cmd.Println("lakegate is running. Press Ctrl+C to stop.")
	err := services.Scheduler.Start(ctx)
	if stopErr := services.Scheduler.Stop(); stopErr != nil {
		logger.Warn("scheduler stop: %v", stopErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler: %w", err)
	}
	cmd.Println("Stopped.")
	return nil
}

func newMetricsServer(addr string, metrics http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
