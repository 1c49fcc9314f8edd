// Package monitor implements driven.Monitor with Prometheus metrics and
// schema drift notifications.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/logger"
)

// Ensure Monitor implements the interface.
var _ driven.Monitor = (*Monitor)(nil)

const namespace = "lakegate"

var classes = []domain.OutcomeClass{
	domain.ClassCurated,
	domain.ClassQuarantined,
	domain.ClassUnevaluated,
	domain.ClassTransformFailed,
}

// Config configures a Monitor. Every field is optional.
type Config struct {
	// Registry receives the metrics. A fresh registry is created when nil.
	Registry *prometheus.Registry

	// Catalog supplies schema changes. Drift detection is off when nil.
	Catalog driven.CatalogReader

	// Notifier and Topic receive the drift notification.
	Notifier driven.Notifier
	Topic    string

	// Textfile, when set, is rewritten with the registry contents after
	// every batch (node_exporter textfile collector format).
	Textfile string
}

// Monitor records batch outcomes.
type Monitor struct {
	registry *prometheus.Registry
	catalog  driven.CatalogReader
	notifier driven.Notifier
	topic    string
	textfile string

	batches       prometheus.Counter
	items         *prometheus.CounterVec
	quarantines   *prometheus.CounterVec
	stageFailures *prometheus.CounterVec
	schemaChanges *prometheus.CounterVec
	duration      prometheus.Histogram
	lastItems     *prometheus.GaugeVec
	lastRun       prometheus.Gauge
}

// New creates a Monitor and registers its metrics.
func New(cfg Config) (*Monitor, error) {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Monitor{
		registry: reg,
		catalog:  cfg.Catalog,
		notifier: cfg.Notifier,
		topic:    cfg.Topic,
		textfile: cfg.Textfile,

		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of batches observed",
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Items by outcome class",
		}, []string{"class"}),
		quarantines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quarantined_total",
			Help:      "Quarantined items by failing check",
		}, []string{"check"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_stage_failures_total",
			Help:      "Catalog and monitoring failures by stage",
		}, []string{"stage"}),
		schemaChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_changes_total",
			Help:      "Catalog column changes by kind",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a batch",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}),
		lastItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_items",
			Help:      "Items by outcome class in the most recent batch",
		}, []string{"class"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_timestamp_seconds",
			Help:      "Unix time the most recent batch ended",
		}),
	}

	collectors := []prometheus.Collector{
		m.batches, m.items, m.quarantines, m.stageFailures,
		m.schemaChanges, m.duration, m.lastItems, m.lastRun,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	// Pre-create class series so dashboards see zeros instead of gaps.
	for _, class := range classes {
		m.items.WithLabelValues(string(class))
		m.lastItems.WithLabelValues(string(class))
	}
	return m, nil
}

// Registry returns the registry the metrics live in, for serving /metrics.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records the batch and reports schema drift. Metrics are always
// recorded; the returned error covers drift lookup and textfile export and is
// counted under the monitor stage.
func (m *Monitor) Observe(ctx context.Context, result *domain.BatchResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}
	m.record(result)

	var errs []error
	if err := m.checkDrift(ctx, result); err != nil {
		errs = append(errs, err)
	}
	if m.textfile != "" {
		if err := prometheus.WriteToTextfile(m.textfile, m.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}
	if len(errs) > 0 {
		m.stageFailures.WithLabelValues(string(domain.StageMonitor)).Inc()
	}
	return errors.Join(errs...)
}

func (m *Monitor) record(result *domain.BatchResult) {
	m.batches.Inc()

	counts := map[domain.OutcomeClass]int{
		domain.ClassCurated:         len(result.Curated),
		domain.ClassQuarantined:     len(result.Quarantined),
		domain.ClassUnevaluated:     len(result.Unevaluated),
		domain.ClassTransformFailed: len(result.TransformFailed),
	}
	for _, class := range classes {
		m.items.WithLabelValues(string(class)).Add(float64(counts[class]))
		m.lastItems.WithLabelValues(string(class)).Set(float64(counts[class]))
	}

	for _, r := range result.Quarantined {
		if r.Verdict != nil {
			m.quarantines.WithLabelValues(r.Verdict.Reason().String()).Inc()
		}
	}

	if result.CatalogErr != nil {
		m.stageFailures.WithLabelValues(string(domain.StageCatalog)).Inc()
	}

	if !result.StartedAt.IsZero() && !result.EndedAt.IsZero() {
		m.duration.Observe(result.Duration().Seconds())
	}
	ended := result.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	m.lastRun.Set(float64(ended.Unix()))
}

// driftMessage is the body of a schema drift notification.
type driftMessage struct {
	RunID   string                `json:"run_id"`
	Changes []domain.SchemaChange `json:"changes"`
}

func (m *Monitor) checkDrift(ctx context.Context, result *domain.BatchResult) error {
	if m.catalog == nil {
		return nil
	}
	changes, err := m.catalog.SchemaChanges(ctx, result.StartedAt)
	if err != nil {
		return fmt.Errorf("read schema changes: %w", err)
	}
	if len(changes) == 0 {
		return nil
	}
	for _, c := range changes {
		m.schemaChanges.WithLabelValues(string(c.Kind)).Inc()
	}

	log := logger.With(logger.FieldRunID, result.RunID, logger.FieldCount, len(changes))
	log.Warn("schema drift detected")
	if m.notifier == nil {
		return nil
	}

	body, err := json.Marshal(driftMessage{RunID: result.RunID, Changes: changes})
	if err != nil {
		return fmt.Errorf("encode drift notification: %w", err)
	}
	if err := m.notifier.Publish(ctx, m.topic, domain.SubjectSchemaDrift, string(body)); err != nil {
		log.With(logger.FieldError, err).Warn("drift notification not delivered")
	}
	return nil
}
