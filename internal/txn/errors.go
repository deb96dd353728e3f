package txn

import (
	"errors"
	"fmt"
)

// ErrStaleTransactionalMemory is returned when transactional memory is used
// outside the lifecycle of the transaction that owns it. It is never
// transient: the transaction is discarded.
var ErrStaleTransactionalMemory = errors.New("stale transactional memory")

// StaleError describes a stale transactional memory fault.
//
// It matches ErrStaleTransactionalMemory via errors.Is.
type StaleError struct {
	TxID       uint64
	ProducerID uint64
	Reason     string
}

func (e *StaleError) Error() string {
	if e.ProducerID == 0 {
		return fmt.Sprintf("stale transactional memory (tx %d): %s", e.TxID, e.Reason)
	}
	return fmt.Sprintf("stale transactional memory (tx %d, producer %d): %s", e.TxID, e.ProducerID, e.Reason)
}

func (e *StaleError) Unwrap() error { return ErrStaleTransactionalMemory }

func staleError(tx *Tx, producerID uint64, reason string) error {
	var txID uint64
	if tx != nil {
		txID = tx.id
	}
	return &StaleError{TxID: txID, ProducerID: producerID, Reason: reason}
}
