package bitdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/bitdb/blobstore"
	"github.com/hupe1980/bitdb/internal/cache"
	"github.com/hupe1980/bitdb/internal/formula"
	"github.com/hupe1980/bitdb/internal/index"
	"github.com/hupe1980/bitdb/internal/resource"
	"github.com/hupe1980/bitdb/internal/txn"
)

var (
	// ErrClosed is returned when the engine has been closed.
	ErrClosed = errors.New("engine closed")

	// ErrConflict is returned when a transaction's memory went stale, for
	// example after a write that bypassed transactions. The transaction is
	// discarded.
	ErrConflict = errors.New("transaction conflict")

	// ErrInvalidQuery is returned for malformed queries and formulas.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotFound is returned for unknown records, attributes and
	// collections.
	ErrNotFound = errors.New("not found")

	// ErrResourceExhausted is returned when a resource budget is exceeded.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrCorruptCache is returned when persisted cache payloads are corrupt.
	ErrCorruptCache = errors.New("corrupt cache payload")

	// ErrNoPayloadStore is returned by SaveCache and LoadCache when no
	// payload store is configured.
	ErrNoPayloadStore = errors.New("no payload store configured")

	// ErrInternal wraps unexpected internal failures.
	ErrInternal = errors.New("internal error")
)

// ErrStale reports a conflicting transaction. It matches ErrConflict.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrStale struct {
	ProducerID uint64
	Reason     string
	cause      error
}

func (e *ErrStale) Error() string {
	return fmt.Sprintf("transaction conflict on producer %d: %s", e.ProducerID, e.Reason)
}

func (e *ErrStale) Unwrap() []error { return []error{ErrConflict, e.cause} }

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var se *txn.StaleError
	if errors.As(err, &se) {
		return &ErrStale{ProducerID: se.ProducerID, Reason: se.Reason, cause: err}
	}
	if errors.Is(err, txn.ErrStaleTransactionalMemory) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	if errors.Is(err, formula.ErrInvalidFormulaConstruction) {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if errors.Is(err, index.ErrUnknownRecord) || errors.Is(err, index.ErrUnknownAttribute) ||
		errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, resource.ErrMemoryLimitExceeded) {
		return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
	}
	if errors.Is(err, cache.ErrCorruptPayload) {
		return fmt.Errorf("%w: %w", ErrCorruptCache, err)
	}

	// Errors defined by this package pass through unchanged.
	for _, known := range []error{ErrClosed, ErrConflict, ErrInvalidQuery, ErrNotFound,
		ErrResourceExhausted, ErrCorruptCache, ErrNoPayloadStore, ErrInternal} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrInternal, err)
}
