// Package txn implements copy-on-write transactional memory for in-memory
// index primitives.
//
// Every primitive (Boolean, Reference, Map, Set, List, Bitmap) is a producer:
// on first touch inside a transaction it creates a private changes layer that
// the transaction reads and writes. Commit merges all layers and publishes
// the results under a new commit version; the values of one commit become
// visible to readers together.
//
// A transaction reads the snapshot of its base version: commits that
// complete after Begin stay invisible to it, and its layers start from that
// snapshot. Each producer keeps the published states still needed by open
// transactions and drops older ones on the next commit.
//
// The transaction is passed explicitly:
//
//	tx := mgr.Begin()
//	defer tx.Rollback()
//
//	if err := flag.SetToTrue(tx); err != nil {
//		return err
//	}
//	return tx.Commit()
//
// A nil *Tx reads the latest committed state and writes it directly. Such
// writes are counted, and a transaction holding a layer for the same
// primitive fails to commit with ErrStaleTransactionalMemory.
package txn
