// Package resource governs the shared budgets of the engine.
//
//   - Memory: bytes held by cached formula results (non-blocking, fail-fast)
//   - Background slots: concurrent maintenance tasks such as cache
//     re-evaluation
//   - IO: throughput of cache payload persistence (token bucket)
//
// Memory reservations never block. A caller that cannot reserve simply does
// not cache:
//
//	if err := rc.AcquireMemory(size); err != nil {
//	    return // ErrMemoryLimitExceeded
//	}
//	defer rc.ReleaseMemory(size) // when the entry is evicted
//
// Background slots can be taken with TryAcquireBackground (used by the
// scheduler to reject work instead of queueing it) or waited for with
// AcquireBackground (used by cache persistence).
//
// All Controller methods are safe for concurrent use and are no-ops on a nil
// Controller.
package resource
