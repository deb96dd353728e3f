package bitdb

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/hupe1980/bitdb/blobstore"
	"github.com/hupe1980/bitdb/internal/cache"
	"github.com/hupe1980/bitdb/internal/formula"
	"github.com/hupe1980/bitdb/internal/index"
	"github.com/hupe1980/bitdb/internal/resource"
	"github.com/hupe1980/bitdb/internal/scheduler"
	"github.com/hupe1980/bitdb/internal/sorter"
	"github.com/hupe1980/bitdb/internal/txn"
)

// Engine evaluates filter queries over transactional collection indexes and
// caches expensive intermediate results.
//
// Engine is safe for concurrent use. Each Tx must stay on the goroutine that
// began it.
type Engine struct {
	logger       *Logger
	metrics      MetricsCollector
	payloadStore blobstore.BlobStore

	rc    *resource.Controller
	sched *scheduler.Scheduler
	mgr   *txn.Manager
	cache *cache.Cache

	collections *txn.Map[string, *index.EntityIndex]

	closed atomic.Bool
}

// New creates an Engine.
func New(optFns ...Option) (*Engine, error) {
	opts := applyOptions(optFns)
	switch opts.cache.Compression {
	case cache.CompressionNone, cache.CompressionLZ4, cache.CompressionZSTD:
	default:
		return nil, fmt.Errorf("unsupported payload compression %s", opts.cache.Compression)
	}

	logger := opts.logger.Logger
	rc := resource.NewController(opts.resource)
	sched := scheduler.New(scheduler.Config{Controller: rc, Logger: logger})

	e := &Engine{
		logger:       opts.logger,
		metrics:      opts.metricsCollector,
		payloadStore: opts.payloadStore,
		rc:           rc,
		sched:        sched,
		collections:  txn.NewMap[string, *index.EntityIndex](),
	}
	// Transaction lifecycle logs go through the observer.
	e.mgr = txn.NewManager(txn.Config{
		Observer: txObserver{logger: opts.logger, metrics: opts.metricsCollector},
	})
	e.cache = cache.New(opts.cache, cache.Options{
		Scheduler:  sched,
		Controller: rc,
		Logger:     logger,
	})
	return e, nil
}

// Begin starts a transaction. Changes made through it are invisible to
// other readers until Commit.
//
// Example:
//
//	tx, _ := db.Begin()
//	defer tx.Rollback()
//	products, _ := db.CreateCollection(tx, "products")
//	_ = products.Insert(tx, 1, 2, 3)
//	_ = db.Commit(tx)
func (e *Engine) Begin() (*Tx, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	return e.mgr.Begin(), nil
}

// Commit publishes the changes of tx.
func (e *Engine) Commit(tx *Tx) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrInvalidQuery)
	}
	return translateError(tx.Commit())
}

// Update runs fn in a new transaction and commits it if fn succeeds.
// Otherwise the transaction is rolled back and fn's error is returned.
func (e *Engine) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := e.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return translateError(err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.Commit(tx)
}

// CreateCollection returns the collection name, creating it in tx if it does
// not exist.
func (e *Engine) CreateCollection(tx *Tx, name string) (*Collection, error) {
	if c, ok := e.collections.Get(tx, name); ok {
		return c, nil
	}
	c := index.New(index.Config{})
	if err := e.collections.Put(tx, name, c); err != nil {
		return nil, translateError(err)
	}
	return c, nil
}

// Collection returns the collection name as visible to tx.
func (e *Engine) Collection(tx *Tx, name string) (*Collection, error) {
	c, ok := e.collections.Get(tx, name)
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", ErrNotFound, name)
	}
	return c, nil
}

// Collections returns the sorted names of all collections visible to tx.
func (e *Engine) Collections(tx *Tx) []string {
	names := e.collections.Keys(tx)
	slices.Sort(names)
	return names
}

// DropCollection removes the collection name in tx.
func (e *Engine) DropCollection(tx *Tx, name string) error {
	c, ok := e.collections.Get(tx, name)
	if !ok {
		return fmt.Errorf("%w: collection %q", ErrNotFound, name)
	}
	if err := e.collections.Remove(tx, name); err != nil {
		return translateError(err)
	}
	e.cache.InvalidateSources(c.Sources(tx)...)
	return nil
}

// Query describes a filter evaluation and the page of results to return.
type Query struct {
	// Filter selects the matching records. Required.
	Filter *Formula
	// OrderBy lists sorters in priority order. Records no sorter places
	// follow in ascending primary key order.
	OrderBy []Sorter
	// Offset is the number of sorted records to skip.
	Offset int
	// Limit bounds the number of returned records. 0 returns all.
	Limit int
	// NoCache evaluates the filter without reading or feeding the cache.
	NoCache bool
}

// Result is the outcome of a Query.
type Result struct {
	// Records is the requested page of matching primary keys.
	Records []uint32
	// Matched is the number of records matching the filter.
	Matched int
	// Skipped is the number of sorted records before the page.
	Skipped int
	// Telemetry describes the evaluated filter.
	Telemetry Telemetry
}

// Query evaluates q. Subtrees with a valid cached result are served from the
// cache; expensive subtrees that are used repeatedly are admitted to it.
func (e *Engine) Query(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	res, err := e.query(ctx, q)
	err = translateError(err)

	var t Telemetry
	returned := 0
	if res != nil {
		t = res.Telemetry
		returned = len(res.Records)
	}
	duration := time.Since(start)
	e.metrics.RecordQuery(t, duration, err)
	e.logger.LogQuery(ctx, t, returned, duration, err)
	return res, err
}

func (e *Engine) query(ctx context.Context, q Query) (*Result, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Filter == nil {
		return nil, fmt.Errorf("%w: missing filter", ErrInvalidQuery)
	}
	if q.Offset < 0 || q.Limit < 0 {
		return nil, fmt.Errorf("%w: negative offset or limit", ErrInvalidQuery)
	}

	f := q.Filter
	if !q.NoCache {
		f = e.cache.Enrich(f)
	}
	matched := f.Compute()
	var admitted int
	if !q.NoCache {
		admitted = e.cache.Record(f)
	}
	t := formula.Collect(f)
	e.metrics.RecordCacheUsage(t.FlattenedNodes, admitted)

	end := matched.Cardinality()
	if q.Limit > 0 {
		end = min(end, q.Offset+q.Limit)
	}
	records, skipped := sorter.SortAndSlice(matched, q.Offset, end, q.OrderBy...)
	return &Result{
		Records:   records,
		Matched:   matched.Cardinality(),
		Skipped:   skipped,
		Telemetry: t,
	}, nil
}

// SaveCache persists the cached results to the configured payload store.
// It returns the number of payloads written.
func (e *Engine) SaveCache(ctx context.Context) (int, error) {
	if e.payloadStore == nil {
		return 0, ErrNoPayloadStore
	}
	n, err := e.cache.SaveTo(ctx, e.payloadStore)
	e.logger.LogCachePersistence(ctx, "save", n, err)
	return n, translateError(err)
}

// LoadCache reads cached results from the configured payload store. Corrupt
// payloads are skipped; payloads whose sources changed since they were saved
// are never served.
func (e *Engine) LoadCache(ctx context.Context) (int, error) {
	if e.payloadStore == nil {
		return 0, ErrNoPayloadStore
	}
	n, err := e.cache.LoadFrom(ctx, e.payloadStore)
	e.logger.LogCachePersistence(ctx, "load", n, err)
	return n, translateError(err)
}

// InvalidateCache drops every cached result.
func (e *Engine) InvalidateCache() {
	e.cache.Clear()
}

// CacheStats returns the cache counters.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// ResourceUsage returns the current resource consumption.
func (e *Engine) ResourceUsage() ResourceUsage {
	return e.rc.Usage()
}

// Version returns the version of the last commit.
func (e *Engine) Version() uint64 {
	return e.mgr.Version()
}

// Close stops background work and drops the cache. Open transactions can
// still be rolled back. Close is idempotent.
func (e *Engine) Close() error {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := e.sched.Close()
	e.cache.Clear()
	return err
}

// txObserver forwards transaction lifecycle events to logs and metrics.
type txObserver struct {
	logger  *Logger
	metrics MetricsCollector
}

func (o txObserver) OnCommit(version uint64, layers int, duration time.Duration, err error) {
	err = translateError(err)
	o.metrics.RecordCommit(layers, duration, err)
	o.logger.LogCommit(context.Background(), version, layers, duration, err)
}

func (o txObserver) OnRollback(layers int) {
	o.metrics.RecordRollback(layers)
	o.logger.LogRollback(context.Background(), layers)
}
