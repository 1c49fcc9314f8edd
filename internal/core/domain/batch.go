package domain

import (
	"time"
)

// BatchTimestampLayout renders the batch partition string (YYYY/MM/DD/HHMMSS).
const BatchTimestampLayout = "2006/01/02/150405"

// OutcomeClass is the user-visible class an item ends a run in.
// The classes are never merged.
type OutcomeClass string

// Outcome classes.
const (
	// ClassCurated items passed validation and were transformed and curated.
	ClassCurated OutcomeClass = "curated"

	// ClassQuarantined items were evaluated and did not meet the bar.
	ClassQuarantined OutcomeClass = "quarantined"

	// ClassUnevaluated items could not be evaluated or routed because of an
	// infrastructure failure. They stay where they were.
	ClassUnevaluated OutcomeClass = "unevaluated"

	// ClassTransformFailed items were staged but the curator failed.
	// They remain staged.
	ClassTransformFailed OutcomeClass = "transform_failed"
)

// ItemResult is what happened to one item in a run.
type ItemResult struct {
	// Key is the key the item had when the run started.
	Key string

	// Index is the item's position in the batch input.
	Index int

	// State is the last state the item reached.
	State ItemState

	// Stage is the stage that produced Err, if any.
	Stage Stage

	// Verdict is set once validation produced one.
	Verdict *Verdict

	// Routing is set once the route committed.
	Routing *RoutingOutcome

	// CuratedLocation is the curated key for curated items.
	CuratedLocation string

	// Err is the error that stopped the item, if any.
	Err error
}

// Class derives the outcome class from the item's final state.
func (r ItemResult) Class() OutcomeClass {
	switch {
	case r.State == StateCurated:
		return ClassCurated
	case r.State == StateQuarantined:
		return ClassQuarantined
	case r.Routing != nil && r.Routing.Zone == ZoneStaging:
		return ClassTransformFailed
	default:
		return ClassUnevaluated
	}
}

// BatchResult is the partitioned outcome of one coordinator run.
type BatchResult struct {
	RunID          string
	StartedAt      time.Time
	EndedAt        time.Time
	BatchTimestamp string

	Curated         []ItemResult
	Quarantined     []ItemResult
	Unevaluated     []ItemResult
	TransformFailed []ItemResult

	// CatalogErr and MonitorErr record batch stage failures. They never
	// invalidate the per-item results above.
	CatalogErr error
	MonitorErr error
}

// Passed returns the keys whose verdict was Passed and whose staging move committed.
func (b *BatchResult) Passed() []string {
	var keys []string
	for _, group := range [][]ItemResult{b.Curated, b.TransformFailed} {
		for _, r := range group {
			if r.Routing != nil && r.Routing.Zone == ZoneStaging {
				keys = append(keys, r.Key)
			}
		}
	}
	return keys
}

// Failed returns the keys that were quarantined.
func (b *BatchResult) Failed() []string {
	keys := make([]string, 0, len(b.Quarantined))
	for _, r := range b.Quarantined {
		keys = append(keys, r.Key)
	}
	return keys
}

// Total returns the number of items that reached an outcome class.
func (b *BatchResult) Total() int {
	return len(b.Curated) + len(b.Quarantined) + len(b.Unevaluated) + len(b.TransformFailed)
}

// HasInfrastructureFailures reports whether any item could not be evaluated.
func (b *BatchResult) HasInfrastructureFailures() bool {
	return len(b.Unevaluated) > 0
}

// Duration returns how long the run took.
func (b *BatchResult) Duration() time.Duration {
	return b.EndedAt.Sub(b.StartedAt)
}

// Add files a result under its outcome class.
func (b *BatchResult) Add(r ItemResult) {
	switch r.Class() {
	case ClassCurated:
		b.Curated = append(b.Curated, r)
	case ClassQuarantined:
		b.Quarantined = append(b.Quarantined, r)
	case ClassTransformFailed:
		b.TransformFailed = append(b.TransformFailed, r)
	default:
		b.Unevaluated = append(b.Unevaluated, r)
	}
}

// RunRecord is the persisted summary of a BatchResult.
type RunRecord struct {
	RunID          string
	StartedAt      time.Time
	EndedAt        time.Time
	BatchTimestamp string
	Curated        int
	Quarantined    int
	Unevaluated    int
	TransformFail  int
	CatalogError   string
	MonitorError   string
	Items          []RunItem
}

// RunItem is one item row of a RunRecord.
type RunItem struct {
	Key         string
	Class       OutcomeClass
	Stage       Stage
	Reason      string
	Destination string
	Error       string

	// StaleDigest is set when the inbound source could not be deleted after
	// routing. It holds the digest of the routed content.
	StaleDigest string
}

// NewRunRecord flattens a batch result for persistence.
func NewRunRecord(b *BatchResult) RunRecord {
	rec := RunRecord{
		RunID:          b.RunID,
		StartedAt:      b.StartedAt,
		EndedAt:        b.EndedAt,
		BatchTimestamp: b.BatchTimestamp,
		Curated:        len(b.Curated),
		Quarantined:    len(b.Quarantined),
		Unevaluated:    len(b.Unevaluated),
		TransformFail:  len(b.TransformFailed),
	}
	if b.CatalogErr != nil {
		rec.CatalogError = b.CatalogErr.Error()
	}
	if b.MonitorErr != nil {
		rec.MonitorError = b.MonitorErr.Error()
	}

	for _, group := range [][]ItemResult{b.Curated, b.Quarantined, b.Unevaluated, b.TransformFailed} {
		for _, r := range group {
			item := RunItem{Key: r.Key, Class: r.Class(), Stage: r.Stage}
			if r.Verdict != nil && !r.Verdict.Passed() {
				item.Reason = r.Verdict.Reason().String()
			}
			switch {
			case r.CuratedLocation != "":
				item.Destination = r.CuratedLocation
			case r.Routing != nil:
				item.Destination = r.Routing.DestinationKey
			}
			if r.Err != nil {
				item.Error = r.Err.Error()
			}
			if r.Routing != nil && r.Routing.StaleSource {
				item.StaleDigest = r.Routing.SourceDigest
			}
			rec.Items = append(rec.Items, item)
		}
	}
	return rec
}
