package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/lakegate/internal/adapters/driven/blobstore/filesystem"
	"github.com/custodia-labs/lakegate/internal/adapters/driven/blobstore/guard"
	"github.com/custodia-labs/lakegate/internal/adapters/driven/blobstore/memory"
	"github.com/custodia-labs/lakegate/internal/adapters/driven/blobstore/s3"
	"github.com/custodia-labs/lakegate/internal/adapters/driven/config/file"
	"github.com/custodia-labs/lakegate/internal/adapters/driven/curation"
	"github.com/custodia-labs/lakegate/internal/adapters/driven/ingest/graphql"
	"github.com/custodia-labs/lakegate/internal/adapters/driven/ingest/local"
	"github.com/custodia-labs/lakegate/internal/adapters/driven/ingest/rest"
	"github.com/custodia-labs/lakegate/internal/adapters/driven/monitor"
	"github.com/custodia-labs/lakegate/internal/adapters/driven/notify/logsink"
	"github.com/custodia-labs/lakegate/internal/adapters/driven/notify/nats"
	"github.com/custodia-labs/lakegate/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/lakegate/internal/adapters/driving/cli"
	"github.com/custodia-labs/lakegate/internal/checks"
	"github.com/custodia-labs/lakegate/internal/config"
	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/core/services"
	"github.com/custodia-labs/lakegate/internal/logger"
)

// closers releases what bootstrap opened, in reverse order.
type closers []func() error

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// bootstrap loads the configuration and wires every adapter into the services.
func bootstrap(configPath string) (*cli.Services, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	s, closeAll, err := wire(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return s, closeAll, nil
}

//nolint:gocyclo // linear wiring of optional collaborators
func wire(ctx context.Context, cfg *domain.PipelineConfig) (*cli.Services, func() error, error) {
	var cl closers
	fail := func(err error) (*cli.Services, func() error, error) {
		_ = cl.close()
		return nil, nil, err
	}

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	notifier, closeNotifier, err := openNotifier(cfg.Notify)
	if err != nil {
		return fail(err)
	}
	cl = append(cl, closeNotifier)

	registry := checks.NewRegistry()
	checks.RegisterDefaults(registry)
	chain, err := checks.BuildChain(ctx, registry, cfg.Validation, checks.Deps{
		Store:   blobs,
		Schemas: checks.NewBlobSchemaRegistry(blobs, ""),
	})
	if err != nil {
		return fail(err)
	}
	validator := services.NewValidatorChain(blobs, cfg.Validation.UnimplementedPolicy, chain...)
	router := services.NewRouter(blobs, notifier, cfg.Prefixes, cfg.Notify.Topic, cfg.Pipeline.CallTimeout)

	var lookup driven.LookupSource
	if cfg.Transform.LookupDSN != "" {
		l, err := curation.OpenLookup(cfg.Transform.LookupDSN, cfg.Transform.LookupTable)
		if err != nil {
			return fail(err)
		}
		cl = append(cl, l.Close)
		lookup = l
	}
	curator := curation.New(blobs, lookup, cfg.Prefixes)

	db, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return fail(fmt.Errorf("open metadata store: %w", err))
	}
	cl = append(cl, db.Close)
	runs := db.RunStore()
	catalog := db.Catalog(blobs, cfg.Catalog.TablePrefix)
	logger.With("crawler", cfg.Catalog.Name).Debug("catalog crawls %s", cfg.CatalogTarget())

	metrics := prometheus.NewRegistry()
	mon, err := monitor.New(monitor.Config{
		Registry: metrics,
		Catalog:  catalog,
		Notifier: notifier,
		Topic:    cfg.Notify.Topic,
		Textfile: cfg.Monitor.Textfile,
	})
	if err != nil {
		return fail(err)
	}

	coordinator := services.NewCoordinator(blobs, validator, router, curator, cfg.Prefixes, services.CoordinatorOptions{
		Concurrency:   cfg.Pipeline.Concurrency,
		StageTimeout:  cfg.Pipeline.CallTimeout,
		CatalogTarget: cfg.CatalogTarget(),
		KeepRuns:      cfg.Pipeline.KeepRuns,
	})
	coordinator.SetCatalog(catalog)
	coordinator.SetMonitor(mon)
	coordinator.SetRunStore(runs)
	router.SetStaleSources(runs)

	s := &cli.Services{
		Config:      cfg,
		Coordinator: coordinator,
		Validator:   validator,
		Router:      router,
		History:     services.NewRunHistory(runs),
		Catalog:     catalog,
		Metrics:     promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}),
	}

	if cfg.Ingest.RestURL != "" {
		ing, err := rest.New(blobs, rest.Config{
			URL:     cfg.Ingest.RestURL,
			Token:   cfg.Ingest.RestToken,
			Inbound: cfg.Prefixes.Inbound,
			Timeout: cfg.Pipeline.CallTimeout,
		})
		if err != nil {
			return fail(err)
		}
		coordinator.AddIngestor(ing)
	}
	if cfg.Ingest.GraphQLEndpoint != "" {
		vars, err := cfg.Ingest.Variables()
		if err != nil {
			return fail(err)
		}
		ing, err := graphql.New(blobs, graphql.Config{
			Endpoint:  cfg.Ingest.GraphQLEndpoint,
			Query:     cfg.Ingest.GraphQLQuery,
			Variables: vars,
			Token:     cfg.Ingest.GraphQLToken,
			Inbound:   cfg.Prefixes.Inbound,
			Retry:     rest.Config{Timeout: cfg.Pipeline.CallTimeout},
		})
		if err != nil {
			return fail(err)
		}
		coordinator.AddIngestor(ing)
	}
	if cfg.Ingest.DropDir != "" {
		ing, err := local.New(blobs, cfg.Ingest.DropDir, cfg.Prefixes.Inbound)
		if err != nil {
			return fail(err)
		}
		cl = append(cl, ing.Close)
		coordinator.AddIngestor(ing)
		s.DropWatch = ing.Watch
	}

	s.Scheduler = services.NewScheduler(
		domain.SchedulerConfigFor(*cfg),
		db.SchedulerStore(),
		coordinator,
		router,
		runs,
		cfg.Pipeline.KeepRuns,
	)
	return s, cl.close, nil
}

func openBlobStore(ctx context.Context, cfg *domain.PipelineConfig) (driven.BlobStore, error) {
	var inner driven.BlobStore
	switch cfg.BlobStore.Driver {
	case "memory":
		inner = memory.New()
	case "filesystem":
		root := cfg.BlobStore.Root
		if root == "" && cfg.DataDir != "" {
			root = filepath.Join(cfg.DataDir, "lake")
		}
		store, err := filesystem.New(root)
		if err != nil {
			return nil, err
		}
		inner = store
	case "s3":
		store, err := s3.New(ctx, cfg.BlobStore)
		if err != nil {
			return nil, err
		}
		inner = store
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown blob store driver %q", cfg.BlobStore.Driver), "")
	}
	return guard.New(inner, guard.Config{
		Timeout:           cfg.Pipeline.CallTimeout,
		RequestsPerSecond: cfg.BlobStore.RateLimit,
		Burst:             cfg.BlobStore.Burst,
	}), nil
}

func openNotifier(cfg domain.NotifyConfig) (driven.Notifier, func() error, error) {
	if cfg.Driver == "nats" {
		n, err := nats.Dial(cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		return n, n.Close, nil
	}
	return logsink.New(), func() error { return nil }, nil
}

// openConfigStore opens the file that config get and set edit.
func openConfigStore(path string) (driven.ConfigStore, error) {
	open := file.NewConfigStore
	if path != "" {
		open = file.OpenConfigFile
		path = filepath.Clean(path)
	}
	store, err := open(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}
