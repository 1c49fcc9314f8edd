package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lakegate/internal/core/domain"
)

var runCmd = &cobra.Command{
	Use:   "run [keys...]",
	Short: "Run one batch through the gate",
	Long: `Runs one batch: ingest, validate, route, curate, then refresh the
catalog and record metrics.

With no arguments the configured ingestors run and every key under the
inbound prefix is processed. With arguments only the given keys are
processed. The command fails when any item could not be evaluated.`,
	Annotations: needsServices(),
	RunE:        runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	if services == nil || services.Coordinator == nil {
		return errors.New("pipeline not configured")
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var (
		result *domain.BatchResult
		err    error
	)
	if len(args) > 0 {
		result, err = services.Coordinator.RunBatch(ctx, args)
	} else {
		result, err = services.Coordinator.Run(ctx)
	}
	if result != nil {
		renderBatch(cmd.OutOrStdout(), result)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	if result.HasInfrastructureFailures() {
		return fmt.Errorf("%d items could not be evaluated: %w", len(result.Unevaluated), domain.ErrInfrastructure)
	}
	return nil
}

// signalContext cancels on interrupt so a batch stops between items.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
