package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/core/ports/driving"
	"github.com/custodia-labs/lakegate/internal/logger"
)

// Ensure Router implements the interface.
var _ driving.Router = (*Router)(nil)

// QuarantineMessage is the JSON body published when an item is quarantined.
type QuarantineMessage struct {
	Key    string `json:"key"`
	Source string `json:"source"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
	RunID  string `json:"run_id,omitempty"`
}

// Router relocates evaluated items and notifies on quarantine.
//
// Relocation is copy-then-delete and is not atomic: if the delete fails the
// item is visible at both keys until Reconcile removes the source.
type Router struct {
	store          driven.BlobStore
	notifier       driven.Notifier
	prefixes       domain.Prefixes
	topic          string
	publishTimeout time.Duration

	stale driven.StaleSourceStore
}

// NewRouter creates a router. notifier may be nil, in which case quarantine
// notifications are skipped.
func NewRouter(
	store driven.BlobStore,
	notifier driven.Notifier,
	prefixes domain.Prefixes,
	topic string,
	publishTimeout time.Duration,
) *Router {
	return &Router{
		store:          store,
		notifier:       notifier,
		prefixes:       prefixes,
		topic:          topic,
		publishTimeout: publishTimeout,
	}
}

// SetStaleSources sets where sources left behind by a failed delete are
// recorded. Without it Reconcile only removes sources whose routed copy exists.
func (r *Router) SetStaleSources(stale driven.StaleSourceStore) { r.stale = stale }

// Destination returns where key goes for the given verdict.
func (r *Router) Destination(key string, verdict domain.Verdict) (string, domain.Zone) {
	zone := domain.ZoneQuarantine
	if verdict.Passed() {
		zone = domain.ZoneStaging
	}
	return r.prefixes.Relocate(key, zone), zone
}

// Route moves key to staging or quarantine according to verdict.
func (r *Router) Route(ctx context.Context, key string, verdict domain.Verdict) (domain.RoutingOutcome, error) {
	dst, zone := r.Destination(key, verdict)
	out := domain.RoutingOutcome{SourceKey: key, DestinationKey: dst, Zone: zone}
	log := logger.With(logger.FieldKey, key, logger.FieldZone, zone, logger.FieldRunID, RunIDFrom(ctx))

	if dst == key {
		return r.verifyInPlace(ctx, out)
	}
	if err := r.checkConflict(ctx, key, dst); err != nil {
		return out, err
	}

	if err := r.store.Copy(ctx, key, dst); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return out, domain.MarkInfrastructure(fmt.Errorf("copy %s to %s: %w", key, dst, err))
		}
		// Source gone: either a previous route already committed or the item was lost.
		exists, xerr := r.store.Exists(ctx, dst)
		if xerr != nil {
			return out, domain.MarkInfrastructure(fmt.Errorf("check %s: %w", dst, xerr))
		}
		if !exists {
			return out, domain.MarkInfrastructure(fmt.Errorf("route %s: %w", key, err))
		}
		log.Debug("already routed to %s", dst)
		out.AlreadyRouted = true
		return out, nil
	}

	// The copy committed; from here on the destination is authoritative.
	if err := r.store.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn("source delete failed after copy to %s, left for reconcile: %v", dst, err)
		out.StaleSource = true
		if data, gerr := r.store.Get(ctx, dst); gerr == nil {
			out.SourceDigest = domain.Digest(data)
		} else {
			log.Warn("digest of %s unavailable: %v", dst, gerr)
		}
	}

	if !verdict.Passed() {
		out.Notified = r.notify(ctx, out, verdict)
	}

	log.Info("routed to %s", dst)
	return out, nil
}

// checkConflict refuses to overwrite a destination that already holds a
// different item under the same key.
func (r *Router) checkConflict(ctx context.Context, key, dst string) error {
	exists, err := r.store.Exists(ctx, dst)
	if err != nil {
		return domain.MarkInfrastructure(fmt.Errorf("check %s: %w", dst, err))
	}
	if !exists {
		return nil
	}
	same, err := r.sameContent(ctx, key, dst)
	if errors.Is(err, domain.ErrNotFound) {
		// Source already moved; the copy below settles it.
		return nil
	}
	if err != nil {
		return domain.MarkInfrastructure(err)
	}
	if !same {
		return domain.MarkInfrastructure(fmt.Errorf("route %s: %s holds a different item: %w", key, dst, domain.ErrConflict))
	}
	return nil
}

func (r *Router) sameContent(ctx context.Context, a, b string) (bool, error) {
	left, err := r.store.Get(ctx, a)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", a, err)
	}
	right, err := r.store.Get(ctx, b)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", b, err)
	}
	return bytes.Equal(left, right), nil
}

func (r *Router) verifyInPlace(ctx context.Context, out domain.RoutingOutcome) (domain.RoutingOutcome, error) {
	exists, err := r.store.Exists(ctx, out.DestinationKey)
	if err != nil {
		return out, domain.MarkInfrastructure(fmt.Errorf("check %s: %w", out.DestinationKey, err))
	}
	if !exists {
		return out, domain.MarkInfrastructure(fmt.Errorf("route %s: %w", out.SourceKey, domain.ErrNotFound))
	}
	out.AlreadyRouted = true
	return out, nil
}

// notify publishes the quarantine notification once. Failures are logged and
// never retried here.
func (r *Router) notify(ctx context.Context, out domain.RoutingOutcome, verdict domain.Verdict) bool {
	if r.notifier == nil {
		return false
	}
	log := logger.With(logger.FieldKey, out.SourceKey, logger.FieldCheck, verdict.Reason())

	msg, err := json.Marshal(QuarantineMessage{
		Key:    out.DestinationKey,
		Source: out.SourceKey,
		Reason: verdict.Reason().String(),
		Detail: verdict.Detail(),
		RunID:  RunIDFrom(ctx),
	})
	if err != nil {
		log.Error("encode quarantine notification: %v", err)
		return false
	}

	pubCtx := context.WithoutCancel(ctx)
	if r.publishTimeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(pubCtx, r.publishTimeout)
		defer cancel()
	}

	if err := r.notifier.Publish(pubCtx, r.topic, domain.SubjectQuarantine, string(msg)); err != nil {
		log.Error("quarantine notification for %s not delivered: %v", out.DestinationKey, err)
		return false
	}
	return true
}

// Reconcile deletes inbound keys that are provably leftover copies of routed
// items: their content equals the staging or quarantine copy, or matches the
// digest recorded when their delete failed. Anything else under the same name
// is a new item and is kept.
//
//nolint:gocyclo // one decision per inbound key
func (r *Router) Reconcile(ctx context.Context) (domain.ReconcileReport, error) {
	report := domain.ReconcileReport{Errors: make(map[string]error)}

	inbound, err := r.store.List(ctx, r.prefixes.Inbound)
	if err != nil {
		return report, domain.MarkInfrastructure(fmt.Errorf("list inbound: %w", err))
	}
	present := make(map[string]bool, len(inbound))
	for _, k := range inbound {
		present[k] = true
	}

	counterparts := make(map[string]string)
	for _, zone := range []domain.Zone{domain.ZoneStaging, domain.ZoneQuarantine} {
		if len(inbound) == 0 {
			break
		}
		keys, err := r.store.List(ctx, r.prefixes.Of(zone))
		if err != nil {
			return report, domain.MarkInfrastructure(fmt.Errorf("list %s: %w", zone, err))
		}
		for _, dst := range keys {
			src := r.prefixes.Relocate(dst, domain.ZoneInbound)
			if _, seen := counterparts[src]; present[src] && !seen {
				counterparts[src] = dst
			}
		}
	}

	digests, err := r.staleDigests(ctx)
	if err != nil {
		return report, err
	}

	for _, src := range inbound {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		dst, hasCopy := counterparts[src]
		digest, recorded := digests[src]
		if !hasCopy && !recorded {
			continue
		}
		log := logger.With(logger.FieldKey, src)

		data, err := r.store.Get(ctx, src)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			report.Errors[src] = err
			log.Warn("reconcile read failed: %v", err)
			continue
		}

		leftover := recorded && digest == domain.Digest(data)
		if !leftover && hasCopy {
			routed, err := r.store.Get(ctx, dst)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				report.Errors[src] = err
				log.Warn("reconcile read of %s failed: %v", dst, err)
				continue
			}
			leftover = err == nil && bytes.Equal(data, routed)
		}
		if !leftover {
			log.Info("kept: content differs from the item routed under this name")
			report.Kept = append(report.Kept, src)
			continue
		}

		if err := r.store.Delete(ctx, src); err != nil && !errors.Is(err, domain.ErrNotFound) {
			report.Errors[src] = err
			log.Warn("reconcile delete failed: %v", err)
			continue
		}
		report.Removed = append(report.Removed, src)
	}

	// A record is settled once its key was removed, replaced or vanished.
	for key := range digests {
		if _, failed := report.Errors[key]; failed {
			continue
		}
		if err := r.stale.ClearStaleSource(ctx, key); err != nil {
			logger.With(logger.FieldKey, key).Warn("clear stale source record: %v", err)
		}
	}

	if len(report.Removed) > 0 {
		logger.Info("Reconciled %d stale inbound keys", len(report.Removed))
	}
	return report, nil
}

func (r *Router) staleDigests(ctx context.Context) (map[string]string, error) {
	digests := make(map[string]string)
	if r.stale == nil {
		return digests, nil
	}
	sources, err := r.stale.StaleSources(ctx)
	if err != nil {
		return nil, domain.MarkInfrastructure(fmt.Errorf("read stale sources: %w", err))
	}
	for _, src := range sources {
		if src.Digest != "" {
			digests[src.Key] = src.Digest
		}
	}
	return digests, nil
}
