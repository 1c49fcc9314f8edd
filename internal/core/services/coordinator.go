package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/core/ports/driving"
	"github.com/custodia-labs/lakegate/internal/logger"
)

// Ensure Coordinator implements the interface.
var _ driving.Coordinator = (*Coordinator)(nil)

// CoordinatorOptions tunes batch execution.
type CoordinatorOptions struct {
	// Concurrency bounds how many items are processed at once.
	Concurrency int

	// StageTimeout bounds a single stage of one item. A stage that has started
	// runs to completion under this bound even if the batch is cancelled.
	StageTimeout time.Duration

	// CatalogTarget is the prefix refreshed after a batch that curated anything.
	CatalogTarget string

	// KeepRuns is how many runs the run store retains. Zero keeps everything.
	KeepRuns int
}

// Coordinator drives each item through validate, route and curate, then runs
// the batch stages once over the partitioned result.
type Coordinator struct {
	store     driven.BlobStore
	validator driving.Validator
	router    driving.Router
	curator   driven.Curator
	prefixes  domain.Prefixes
	opts      CoordinatorOptions

	// Optional collaborators
	catalog   driven.Catalog
	monitor   driven.Monitor
	runs      driven.RunStore
	ingestors []driven.Ingestor

	now   func() time.Time
	newID func() string
}

// NewCoordinator creates a coordinator. Catalog, monitor, run store and
// ingestors are optional and attached with the Set methods.
func NewCoordinator(
	store driven.BlobStore,
	validator driving.Validator,
	router driving.Router,
	curator driven.Curator,
	prefixes domain.Prefixes,
	opts CoordinatorOptions,
) *Coordinator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.CatalogTarget == "" {
		opts.CatalogTarget = prefixes.Curated
	}
	return &Coordinator{
		store:     store,
		validator: validator,
		router:    router,
		curator:   curator,
		prefixes:  prefixes,
		opts:      opts,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// SetCatalog sets the catalog refreshed after each batch.
func (c *Coordinator) SetCatalog(catalog driven.Catalog) { c.catalog = catalog }

// SetMonitor sets the monitor that observes each batch.
func (c *Coordinator) SetMonitor(monitor driven.Monitor) { c.monitor = monitor }

// SetRunStore sets where run history is persisted.
func (c *Coordinator) SetRunStore(runs driven.RunStore) { c.runs = runs }

// AddIngestor registers an ingestor invoked at the start of Run.
func (c *Coordinator) AddIngestor(ing driven.Ingestor) { c.ingestors = append(c.ingestors, ing) }

// Run ingests upstream data, reconciles stale sources, lists the inbound zone
// and processes everything found as one batch.
func (c *Coordinator) Run(ctx context.Context) (*domain.BatchResult, error) {
	logger.Section("Ingest")
	batchTime := c.now().UTC()
	for _, ing := range c.ingestors {
		if ctx.Err() != nil {
			break
		}
		keys, err := ing.Ingest(ctx, batchTime)
		if err != nil {
			logger.With(logger.FieldStage, domain.StageIngest).Error("ingestor %s failed: %v", ing.Name(), err)
			continue
		}
		logger.Info("Ingestor %s landed %d items", ing.Name(), len(keys))
	}

	// A source left behind by a failed delete must not be evaluated twice.
	report, err := c.router.Reconcile(ctx)
	if err != nil {
		logger.Warn("reconcile before run failed: %v", err)
	}

	listed, err := c.store.List(ctx, c.prefixes.Inbound)
	if err != nil {
		return nil, domain.MarkInfrastructure(fmt.Errorf("list inbound: %w", err))
	}
	keys := make([]string, 0, len(listed))
	for _, key := range listed {
		if _, unsettled := report.Errors[key]; unsettled {
			logger.With(logger.FieldKey, key).Warn("skipped: stale source could not be reconciled")
			continue
		}
		keys = append(keys, key)
	}
	return c.RunBatch(ctx, keys)
}

// RunBatch processes keys and partitions them into outcome classes.
//
// Cancellation is checked before each item starts. Items that never started
// are absent from the result, which is returned together with ctx.Err().
func (c *Coordinator) RunBatch(ctx context.Context, keys []string) (*domain.BatchResult, error) {
	started := c.now()
	batchTime := started.UTC()
	result := &domain.BatchResult{
		RunID:          c.newID(),
		StartedAt:      started,
		BatchTimestamp: batchTime.Format(domain.BatchTimestampLayout),
	}
	ctx = WithRunID(ctx, result.RunID)
	log := logger.With(logger.FieldRunID, result.RunID)

	keys = dedupe(keys)
	log.Info("Starting batch of %d items", len(keys))

	items := make([]*domain.ItemResult, len(keys))
	g := new(errgroup.Group)
	g.SetLimit(c.opts.Concurrency)
	for i, key := range keys {
		if ctx.Err() != nil {
			break
		}
		i, key := i, key
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r := c.processItem(ctx, i, key, batchTime)
			items[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range items {
		if r != nil {
			result.Add(*r)
		}
	}

	c.runBatchStages(ctx, result)

	log.Info("Batch complete: %d curated, %d quarantined, %d unevaluated, %d transform failures",
		len(result.Curated), len(result.Quarantined), len(result.Unevaluated), len(result.TransformFailed))
	return result, ctx.Err()
}

func (c *Coordinator) runBatchStages(ctx context.Context, result *domain.BatchResult) {
	detached := context.WithoutCancel(ctx)
	log := logger.With(logger.FieldRunID, result.RunID)

	if c.catalog != nil && len(result.Curated) > 0 && ctx.Err() == nil {
		stageCtx, cancel := c.stageContext(detached)
		if err := c.catalog.Refresh(stageCtx, c.opts.CatalogTarget); err != nil {
			result.CatalogErr = fmt.Errorf("catalog refresh: %w", err)
			log.With(logger.FieldStage, domain.StageCatalog).Error("%v", result.CatalogErr)
		}
		cancel()
	}

	result.EndedAt = c.now()

	if c.monitor != nil {
		stageCtx, cancel := c.stageContext(detached)
		if err := c.monitor.Observe(stageCtx, result); err != nil {
			result.MonitorErr = fmt.Errorf("monitor: %w", err)
			log.With(logger.FieldStage, domain.StageMonitor).Error("%v", result.MonitorErr)
		}
		cancel()
	}

	if c.runs != nil {
		rec := domain.NewRunRecord(result)
		if err := c.runs.SaveRun(detached, &rec); err != nil {
			log.Warn("save run history: %v", err)
		} else if c.opts.KeepRuns > 0 {
			if err := c.runs.PruneRuns(detached, c.opts.KeepRuns); err != nil {
				log.Warn("prune run history: %v", err)
			}
		}
	}
}

// processItem runs one item through its stages. Every stage error is caught
// here and recorded on the item result.
//
//nolint:gocyclo // Sequential state machine, one branch per stage outcome
func (c *Coordinator) processItem(ctx context.Context, index int, key string, batchTime time.Time) domain.ItemResult {
	r := domain.ItemResult{Key: key, Index: index, State: domain.StateIngested}
	log := logger.With(logger.FieldRunID, RunIDFrom(ctx), logger.FieldKey, key)

	switch c.prefixes.ZoneOf(key) {
	case domain.ZoneCurated:
		log.Debug("already curated, skipping")
		r.State = domain.StateCurated
		r.CuratedLocation = key
		return r
	case domain.ZoneQuarantine:
		log.Debug("already quarantined, skipping")
		r.State = domain.StateQuarantined
		r.Routing = &domain.RoutingOutcome{
			SourceKey: key, DestinationKey: key, Zone: domain.ZoneQuarantine, AlreadyRouted: true,
		}
		return r
	case domain.ZoneStaging:
		// Staged by an earlier run whose curation did not finish.
		r.State = domain.StateStaged
		r.Routing = &domain.RoutingOutcome{
			SourceKey: key, DestinationKey: key, Zone: domain.ZoneStaging, AlreadyRouted: true,
		}
		return c.curate(ctx, r, batchTime)
	case domain.ZoneEnriched:
		log.Warn("enriched keys are not batch input, skipping")
		r.Stage = domain.StageValidate
		r.Err = fmt.Errorf("%w: %s is in the enriched zone", domain.ErrInvalidInput, key)
		return r
	}

	if !c.advance(&r, domain.StateValidating, domain.StageValidate) {
		return r
	}

	stageCtx, cancel := c.stageContext(context.WithoutCancel(ctx))
	verdict, err := c.validator.Validate(stageCtx, key)
	cancel()
	if errors.Is(err, domain.ErrNotFound) {
		// The source is gone; an earlier run may already have committed it.
		if done, ok := c.committed(ctx, r, batchTime); ok {
			return done
		}
	}
	if err != nil {
		r.Stage = domain.StageValidate
		r.Err = err
		log.With(logger.FieldStage, domain.StageValidate).Error("not evaluated: %v", err)
		return r
	}
	r.Verdict = &verdict
	log.Debug("verdict: %s", verdict)

	if err := ctx.Err(); err != nil {
		r.Stage = domain.StageRoute
		r.Err = err
		return r
	}

	stageCtx, cancel = c.stageContext(context.WithoutCancel(ctx))
	outcome, err := c.router.Route(stageCtx, key, verdict)
	cancel()
	if err != nil {
		r.Stage = domain.StageRoute
		r.Err = err
		log.With(logger.FieldStage, domain.StageRoute).Error("not routed: %v", err)
		return r
	}
	r.Routing = &outcome

	if !verdict.Passed() {
		c.advance(&r, domain.StateQuarantined, domain.StageRoute)
		return r
	}
	if !c.advance(&r, domain.StateStaged, domain.StageRoute) {
		return r
	}

	if err := ctx.Err(); err != nil {
		r.Stage = domain.StageTransform
		r.Err = err
		return r
	}
	return c.curate(ctx, r, batchTime)
}

func (c *Coordinator) curate(ctx context.Context, r domain.ItemResult, batchTime time.Time) domain.ItemResult {
	log := logger.With(logger.FieldRunID, RunIDFrom(ctx), logger.FieldKey, r.Key, logger.FieldStage, domain.StageTransform)

	if !c.advance(&r, domain.StateTransforming, domain.StageTransform) {
		return r
	}

	stageCtx, cancel := c.stageContext(context.WithoutCancel(ctx))
	defer cancel()
	location, err := c.curator.EnrichAndCurate(stageCtx, r.Routing.DestinationKey, batchTime)
	if err != nil {
		if !errors.Is(err, domain.ErrTransform) {
			err = fmt.Errorf("%w: %w", domain.ErrTransform, err)
		}
		r.Stage = domain.StageTransform
		r.Err = err
		log.Error("curation failed, item stays staged: %v", err)
		return r
	}

	if c.advance(&r, domain.StateCurated, domain.StageTransform) {
		r.CuratedLocation = location
		log.Debug("curated to %s", location)
		c.releaseStaged(stageCtx, r)
	}
	return r
}

// releaseStaged removes the staged copy once curation committed, so the item
// lives only in the curated zone. A stale source without a digest keeps it as
// the copy reconcile compares against.
func (c *Coordinator) releaseStaged(ctx context.Context, r domain.ItemResult) {
	staged := r.Routing.DestinationKey
	log := logger.With(logger.FieldRunID, RunIDFrom(ctx), logger.FieldKey, staged)
	if r.Routing.StaleSource && r.Routing.SourceDigest == "" {
		log.Warn("staged copy kept until the stale source %s is reconciled", r.Routing.SourceKey)
		return
	}
	if err := c.store.Delete(ctx, staged); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn("curated, but the staged copy was not removed: %v", err)
	}
}

// committed resolves an inbound key whose source no longer exists to the
// outcome an earlier run committed. It returns false when nothing was found.
func (c *Coordinator) committed(ctx context.Context, r domain.ItemResult, batchTime time.Time) (domain.ItemResult, bool) {
	stageCtx, cancel := c.stageContext(context.WithoutCancel(ctx))
	defer cancel()
	log := logger.With(logger.FieldRunID, RunIDFrom(ctx), logger.FieldKey, r.Key)

	quarantined := c.prefixes.Relocate(r.Key, domain.ZoneQuarantine)
	if ok, err := c.store.Exists(stageCtx, quarantined); err == nil && ok {
		log.Debug("already quarantined at %s", quarantined)
		r.State = domain.StateQuarantined
		r.Routing = &domain.RoutingOutcome{
			SourceKey: r.Key, DestinationKey: quarantined, Zone: domain.ZoneQuarantine, AlreadyRouted: true,
		}
		return r, true
	}

	staged := c.prefixes.Relocate(r.Key, domain.ZoneStaging)
	if ok, err := c.store.Exists(stageCtx, staged); err == nil && ok {
		log.Debug("already staged at %s, resuming curation", staged)
		r.State = domain.StateStaged
		r.Routing = &domain.RoutingOutcome{
			SourceKey: r.Key, DestinationKey: staged, Zone: domain.ZoneStaging, AlreadyRouted: true,
		}
		return c.curate(ctx, r, batchTime), true
	}

	location, err := c.curator.CuratedLocation(stageCtx, staged)
	if err != nil {
		log.Warn("curated lookup failed: %v", err)
		return r, false
	}
	if location == "" {
		return r, false
	}
	log.Debug("already curated at %s", location)
	r.State = domain.StateCurated
	r.CuratedLocation = location
	r.Routing = &domain.RoutingOutcome{
		SourceKey: r.Key, DestinationKey: staged, Zone: domain.ZoneStaging, AlreadyRouted: true,
	}
	return r, true
}

// advance moves r to next or records the illegal transition as the item error.
func (c *Coordinator) advance(r *domain.ItemResult, next domain.ItemState, stage domain.Stage) bool {
	state, err := r.State.Advance(next)
	if err != nil {
		r.Stage = stage
		r.Err = err
		return false
	}
	r.State = state
	return true
}

func (c *Coordinator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.StageTimeout)
}

// dedupe drops empty and repeated keys, keeping first occurrences in order.
func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
