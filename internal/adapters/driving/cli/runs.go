package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:         "runs",
	Short:       "List recent runs",
	Args:        cobra.NoArgs,
	Annotations: needsServices(),
	RunE:        runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:         "show <run-id>",
	Short:       "Show the items of one run",
	Long:        `Shows every item of a run with its outcome class. A unique run ID prefix is enough.`,
	Args:        cobra.ExactArgs(1),
	Annotations: needsServices(),
	RunE:        runRunsShow,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to list (0 for all)")
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	if services == nil || services.History == nil {
		return errors.New("run history not configured")
	}

	runs, err := services.History.List(cmd.Context(), runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		cmd.Println("No runs recorded.")
		return nil
	}

	t := newTable("RUN", "STARTED", "DURATION", "CURATED", "QUARANTINED", "UNEVALUATED", "TRANSFORM FAILED")
	for _, r := range runs {
		t.Row(
			shortID(r.RunID),
			r.StartedAt.Local().Format(time.DateTime),
			r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			fmt.Sprint(r.Curated),
			fmt.Sprint(r.Quarantined),
			fmt.Sprint(r.Unevaluated),
			fmt.Sprint(r.TransformFail),
		)
	}
	cmd.Println(t.Render())
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	if services == nil || services.History == nil {
		return errors.New("run history not configured")
	}

	run, err := services.History.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}

	cmd.Printf("Run:     %s\n", run.RunID)
	cmd.Printf("Batch:   %s\n", run.BatchTimestamp)
	cmd.Printf("Started: %s\n", run.StartedAt.Local().Format(time.DateTime))
	cmd.Printf("Ended:   %s\n", run.EndedAt.Local().Format(time.DateTime))
	if run.CatalogError != "" {
		cmd.Printf("Catalog: %s\n", run.CatalogError)
	}
	if run.MonitorError != "" {
		cmd.Printf("Monitor: %s\n", run.MonitorError)
	}
	cmd.Println()

	t := newTable("KEY", "CLASS", "DESTINATION", "DETAIL")
	for _, item := range run.Items {
		detail := item.Reason
		if item.Error != "" {
			detail = fmt.Sprintf("%s: %s", item.Stage, item.Error)
		}
		t.Row(item.Key, string(item.Class), item.Destination, detail)
	}
	cmd.Println(t.Render())
	return nil
}

// newTable builds a borderless table for listings.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(headers...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
