package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var changesSince time.Duration

var catalogCmd = &cobra.Command{
	Use:         "catalog",
	Short:       "List catalog tables and their columns",
	Args:        cobra.NoArgs,
	Annotations: needsServices(),
	RunE:        runCatalogTables,
}

var catalogChangesCmd = &cobra.Command{
	Use:         "changes",
	Short:       "List schema changes the crawler detected",
	Args:        cobra.NoArgs,
	Annotations: needsServices(),
	RunE:        runCatalogChanges,
}

func init() {
	catalogChangesCmd.Flags().DurationVar(&changesSince, "since", 7*24*time.Hour, "how far back to look")
	catalogCmd.AddCommand(catalogChangesCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogTables(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Catalog == nil {
		return errors.New("catalog not configured")
	}

	tables, err := services.Catalog.Tables(cmd.Context())
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	if len(tables) == 0 {
		cmd.Println("No tables catalogued yet.")
		return nil
	}

	t := newTable("TABLE", "OBJECTS", "UPDATED", "COLUMNS")
	for _, tbl := range tables {
		cols := make([]string, len(tbl.Columns))
		for i, c := range tbl.Columns {
			cols[i] = c.Name + ":" + c.Type
		}
		t.Row(tbl.Name, fmt.Sprint(tbl.Objects), tbl.UpdatedAt.Local().Format(time.DateTime), strings.Join(cols, ", "))
	}
	cmd.Println(t.Render())
	return nil
}

func runCatalogChanges(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Catalog == nil {
		return errors.New("catalog not configured")
	}

	changes, err := services.Catalog.SchemaChanges(cmd.Context(), time.Now().Add(-changesSince))
	if err != nil {
		return fmt.Errorf("list schema changes: %w", err)
	}
	if len(changes) == 0 {
		cmd.Println("No schema changes.")
		return nil
	}

	t := newTable("DETECTED", "TABLE", "COLUMN", "CHANGE", "TYPE")
	for _, c := range changes {
		t.Row(c.DetectedAt.Local().Format(time.DateTime), c.Table, c.Column, string(c.Kind), c.Type)
	}
	cmd.Println(t.Render())
	return nil
}
