package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <key>",
	Short: "Run the validator chain for one item",
	Long: `Reads one item from the blob store and runs the validator chain.
Nothing is moved and no notification is sent.`,
	Args:        cobra.ExactArgs(1),
	Annotations: needsServices(),
	RunE:        runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	if services == nil || services.Validator == nil {
		return errors.New("validator not configured")
	}

	verdict, err := services.Validator.Validate(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("could not evaluate %s: %w", args[0], err)
	}
	renderVerdict(cmd.OutOrStdout(), args[0], verdict)
	return nil
}
