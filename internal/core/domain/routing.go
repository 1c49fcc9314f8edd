package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Notification subjects.
const (
	SubjectQuarantine  = "Data Quarantine"
	SubjectSchemaDrift = "Schema Drift"
)

// RoutingOutcome records where an item was moved and whether a notification went out.
// Exactly one exists per routed item in a batch.
type RoutingOutcome struct {
	// SourceKey is the inbound key the item was read from.
	SourceKey string

	// DestinationKey is the staging or quarantine key the item now lives at.
	DestinationKey string

	// Zone is the destination zone.
	Zone Zone

	// Notified is true when the quarantine notification was published.
	Notified bool

	// StaleSource is true when the copy committed but deleting the source failed.
	// The destination is authoritative; Reconcile removes the source later.
	StaleSource bool

	// SourceDigest is the content digest of the copied item, set with StaleSource
	// so a later reconcile can prove the inbound key is the leftover copy.
	SourceDigest string

	// AlreadyRouted is true when the source was already gone and the destination
	// present, so the route was a no-op.
	AlreadyRouted bool
}

// ReconcileReport summarises a reconciliation pass.
type ReconcileReport struct {
	// Removed lists stale inbound keys that were deleted.
	Removed []string

	// Kept lists inbound keys that share a name with a routed item but hold
	// different content. They are new items and stay for evaluation.
	Kept []string

	// Errors maps stale inbound keys to the error that kept them in place.
	Errors map[string]error
}

// StaleSource is an inbound key left behind when deleting it after a
// committed copy failed.
type StaleSource struct {
	Key        string
	Digest     string
	RunID      string
	RecordedAt time.Time
}

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
