package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Remove inbound copies of items that were already routed",
	Long: `Deletes inbound objects that are leftover copies of routed items:
their content equals the staging or quarantine copy, or matches the digest
recorded when a route's copy committed but its delete failed.

Inbound objects that share a name with a routed item but hold different
content are new items. They are listed as kept and evaluated by the next run.`,
	Args:        cobra.NoArgs,
	Annotations: needsServices(),
	RunE:        runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Router == nil {
		return errors.New("router not configured")
	}

	report, err := services.Router.Reconcile(cmd.Context())
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	renderReconcile(cmd.OutOrStdout(), report)
	if len(report.Errors) > 0 {
		return fmt.Errorf("%d stale sources could not be removed", len(report.Errors))
	}
	return nil
}
