// Package cli provides the cobra command tree for lakegate.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/core/ports/driving"
	"github.com/custodia-labs/lakegate/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services are the collaborators the commands drive. main builds them from
// the loaded configuration.
type Services struct {
	Config      *domain.PipelineConfig
	Coordinator driving.Coordinator
	Validator   driving.Validator
	Router      driving.Router
	History     driving.RunHistory
	Scheduler   driving.Scheduler
	Catalog     driven.CatalogReader

	// Metrics serves /metrics during serve. Nil disables the endpoint.
	Metrics http.Handler

	// DropWatch reports files landing in the drop directory. Nil disables watching.
	DropWatch func(ctx context.Context) (<-chan string, error)
}

// Bootstrap builds Services from a config path. The returned function
// releases whatever Bootstrap opened.
type Bootstrap func(configPath string) (*Services, func() error, error)

var (
	verbose    bool
	configPath string

	bootstrap Bootstrap
	services  *Services
	release   func() error
)

// annotationNeedsServices marks commands that run the pipeline.
const annotationNeedsServices = "lakegate/needs-services"

var rootCmd = &cobra.Command{
	Use:   "lakegate",
	Short: "Validate, route and curate data lake batches",
	Long: `lakegate is a quality gate for a data lake.

Items landing in the inbound zone are validated by a chain of checks and
moved to staging or quarantine. Staged items are enriched and curated,
then the catalog is refreshed and the batch is monitored.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.lakegate/config.toml)")
}

// SetBootstrap sets how commands obtain their services.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// Execute runs the root command.
func Execute() error {
	defer func() { _ = teardown() }()
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if cmd.Annotations[annotationNeedsServices] != "true" || services != nil {
		return nil
	}
	if bootstrap == nil {
		return errors.New("pipeline services not configured")
	}
	s, closeFn, err := bootstrap(configPath)
	if err != nil {
		return describe(err)
	}
	services = s
	release = closeFn
	return nil
}

func teardown() error {
	if release == nil {
		return nil
	}
	fn := release
	release = nil
	services = nil
	return fn()
}

func needsServices() map[string]string {
	return map[string]string{annotationNeedsServices: "true"}
}

// describe appends configuration hints to an error for the terminal.
func describe(err error) error {
	hints := domain.Hints(err)
	if len(hints) == 0 {
		return err
	}
	return fmt.Errorf("%w\nhint: %s", err, strings.Join(hints, "\nhint: "))
}
