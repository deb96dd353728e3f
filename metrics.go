package bitdb

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    queryCounter   prometheus.Counter
//	    queryHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordQuery(t bitdb.Telemetry, duration time.Duration, err error) {
//	    p.queryCounter.Inc()
//	    p.queryHistogram.Observe(duration.Seconds())
//	}
type MetricsCollector interface {
	// RecordQuery is called after each query with the telemetry of its
	// filter formula. err is nil if successful.
	RecordQuery(t Telemetry, duration time.Duration, err error)

	// RecordCacheUsage is called after each query with the number of
	// subtrees served from the cache and the number admitted to it.
	RecordCacheUsage(hits, admitted int)

	// RecordCommit is called after each commit attempt.
	RecordCommit(layers int, duration time.Duration, err error)

	// RecordRollback is called when a transaction is discarded.
	RecordRollback(layers int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordQuery(Telemetry, time.Duration, error) {}
func (NoopMetricsCollector) RecordCacheUsage(int, int)                   {}
func (NoopMetricsCollector) RecordCommit(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordRollback(int)                          {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	QueryCount       atomic.Int64
	QueryErrors      atomic.Int64
	QueryTotalNanos  atomic.Int64
	QueryActualCost  atomic.Int64
	CacheHits        atomic.Int64
	CacheAdmitted    atomic.Int64
	CommitCount      atomic.Int64
	CommitConflicts  atomic.Int64
	CommitTotalNanos atomic.Int64
	RollbackCount    atomic.Int64
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(t Telemetry, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
		return
	}
	b.QueryActualCost.Add(t.ActualCost)
}

// RecordCacheUsage implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheUsage(hits, admitted int) {
	b.CacheHits.Add(int64(hits))
	b.CacheAdmitted.Add(int64(admitted))
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(layers int, duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.CommitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CommitConflicts.Add(1)
	}
}

// RecordRollback implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRollback(layers int) {
	b.RollbackCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		QueryCount:      b.QueryCount.Load(),
		QueryErrors:     b.QueryErrors.Load(),
		QueryAvgNanos:   average(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
		QueryActualCost: b.QueryActualCost.Load(),
		CacheHits:       b.CacheHits.Load(),
		CacheAdmitted:   b.CacheAdmitted.Load(),
		CommitCount:     b.CommitCount.Load(),
		CommitConflicts: b.CommitConflicts.Load(),
		CommitAvgNanos:  average(b.CommitTotalNanos.Load(), b.CommitCount.Load()),
		RollbackCount:   b.RollbackCount.Load(),
	}
}

func average(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	QueryCount      int64
	QueryErrors     int64
	QueryAvgNanos   int64
	QueryActualCost int64
	CacheHits       int64
	CacheAdmitted   int64
	CommitCount     int64
	CommitConflicts int64
	CommitAvgNanos  int64
	RollbackCount   int64
}
