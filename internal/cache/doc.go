// Package cache stores computed formula results for reuse across queries.
//
// # Admission
//
// Eligible subtrees (cacheable, reading at least one transactional source and
// estimated to cost at least MinimalComplexityThreshold) are first tracked in
// the anteroom, which counts how often each one is seen. A subtree seen
// MinimalUsageThreshold times has its next computed result admitted to the
// eden, a byte-bounded LRU of payloads. When the anteroom outgrows its
// capacity an eden evaluation is submitted to the scheduler; it keeps the
// adepts with the best cost saved per stored element. If no background slot
// is free the anteroom is trimmed in place.
//
// # Invalidation
//
// A payload records the version of every source it was computed from. It is
// served only while each of those sources is still read by the formula at a
// version not newer than the recorded one. Stale payloads are evicted on
// lookup.
//
// # Persistence
//
// SaveTo and LoadFrom move payloads to and from a blob store, one blob per
// key. Blob names are scoped to the producer id epoch of the process, since
// payloads name their sources by id. Bitmaps are compressed with LZ4 by default or ZSTD, and every blob is
// checksummed. A corrupt blob is a miss, never a failure.
package cache
