package bitdb

import (
	"github.com/hupe1980/bitdb/internal/cache"
	"github.com/hupe1980/bitdb/internal/formula"
	"github.com/hupe1980/bitdb/internal/index"
	"github.com/hupe1980/bitdb/internal/resource"
	"github.com/hupe1980/bitdb/internal/sorter"
	"github.com/hupe1980/bitdb/internal/txn"
)

type (
	// Tx is a transaction. It is owned by the goroutine that began it.
	Tx = txn.Tx
	// Formula is a node of a filter expression over collection bitmaps.
	Formula = formula.Formula
	// Telemetry summarizes an evaluated formula.
	Telemetry = formula.Telemetry
	// Sorter orders query results.
	Sorter = sorter.Sorter
	// Order is the direction of an attribute sorter.
	Order = sorter.Order
	// Collection is the transactional index of one entity collection.
	Collection = index.EntityIndex
	// AttributeKey identifies an attribute by name and locale.
	AttributeKey = index.AttributeKey

	// CacheConfig configures the formula result cache.
	CacheConfig = cache.Config
	// CacheStats reports cache counters.
	CacheStats = cache.Stats
	// Compression selects the codec of persisted cache payloads.
	Compression = cache.Compression

	// ResourceConfig holds memory, background and IO limits.
	ResourceConfig = resource.Config
	// ResourceUsage is a point-in-time view of resource consumption.
	ResourceUsage = resource.Usage
)

const (
	Ascending  = sorter.Ascending
	Descending = sorter.Descending
)

const (
	CompressionNone = cache.CompressionNone
	CompressionLZ4  = cache.CompressionLZ4
	CompressionZSTD = cache.CompressionZSTD
)

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return cache.DefaultConfig()
}

// DefaultResourceConfig returns the default resource limits.
func DefaultResourceConfig() ResourceConfig {
	return resource.DefaultConfig()
}

// And builds the intersection of fs.
func And(fs ...*Formula) *Formula {
	return formula.And(fs...)
}

// Or builds the union of fs.
func Or(fs ...*Formula) *Formula {
	return formula.Or(fs...)
}

// Not builds superset minus subtracted.
func Not(subtracted, superset *Formula) *Formula {
	return formula.Not(subtracted, superset)
}

// Explain renders f as an indented tree.
func Explain(f *Formula) string {
	return formula.Explain(f)
}
