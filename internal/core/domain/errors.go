package domain

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Domain errors represent business logic failures.
// Infrastructure failures are marked with ErrInfrastructure so callers can
// tell "could not evaluate" apart from "evaluated and rejected".
var (
	// ErrNotFound indicates a requested key or entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied indicates the caller is not authorised for the operation.
	ErrAccessDenied = errors.New("access denied")

	// ErrTransient indicates a retryable infrastructure fault (network, timeout, throttling).
	ErrTransient = errors.New("transient error")

	// ErrInfrastructure marks any failure of an external collaborator.
	// An item that hits one is reported as unevaluated, never quarantined.
	ErrInfrastructure = errors.New("infrastructure error")

	// ErrTransform indicates the transformation/curation step failed for one item.
	ErrTransform = errors.New("transform error")

	// ErrConfiguration indicates invalid startup configuration.
	// It is fatal and must be raised before any blob is touched.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedFormat indicates an item's content type cannot be decoded.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrConflict indicates a destination key already holds a different item.
	ErrConflict = errors.New("conflict")

	// ErrIllegalTransition indicates an item state machine was driven backwards.
	ErrIllegalTransition = errors.New("illegal state transition")
)

// MarkInfrastructure tags err as an infrastructure failure while keeping its cause.
func MarkInfrastructure(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrInfrastructure)
}

// IsInfrastructure reports whether err means a collaborator could not do its job,
// as opposed to a business outcome.
func IsInfrastructure(err error) bool {
	if err == nil {
		return false
	}
	return errors.IsAny(err,
		ErrInfrastructure,
		ErrTransient,
		ErrAccessDenied,
		ErrNotFound,
		context.DeadlineExceeded,
		context.Canceled,
	)
}

// ConfigError builds an ErrConfiguration with a user-facing hint.
func ConfigError(msg, hint string) error {
	err := errors.Wrap(ErrConfiguration, msg)
	if hint != "" {
		err = errors.WithHint(err, hint)
	}
	return err
}

// Hints returns any user-facing hints attached to err.
func Hints(err error) []string {
	return errors.GetAllHints(err)
}
