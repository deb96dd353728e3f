package cache

import (
	"cmp"
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/bitdb/internal/formula"
	"github.com/hupe1980/bitdb/internal/resource"
	"github.com/hupe1980/bitdb/internal/scheduler"
)

const edenTask = "cache-eden-evaluation"

// Options carries the collaborators of a Cache.
type Options struct {
	// Scheduler runs eden evaluations. If nil they run synchronously.
	Scheduler *scheduler.Scheduler
	// Controller accounts the memory of stored payloads. Persistence holds
	// one of its background slots and is throttled by its IO budget.
	// Optional.
	Controller *resource.Controller
	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// adept is a subtree seen by the cache but not stored yet.
type adept struct {
	usage int
	// ratio is the cost paid per produced element: estimated until the
	// subtree has been computed once, measured afterwards.
	ratio    float64
	measured bool
}

// value is the cost saved per stored element over all recorded usages.
func (a *adept) value() float64 {
	return float64(a.usage) * a.ratio
}

// Cache stores computed formula results and serves them while every source
// they were computed from is still at the recorded version.
//
// New subtrees first wait in the anteroom, which counts how often they are
// seen. Once a subtree reaches MinimalUsageThreshold its next computed result
// is admitted to the eden, an LRU of payloads.
type Cache struct {
	cfg    Config
	sched  *scheduler.Scheduler
	rc     *resource.Controller
	logger *slog.Logger

	eden *lru

	mu         sync.Mutex
	anteroom   map[Key]*adept
	evaluating atomic.Bool

	hits        atomic.Int64
	misses      atomic.Int64
	stale       atomic.Int64
	admitted    atomic.Int64
	evicted     atomic.Int64
	evaluations atomic.Int64
	rejections  atomic.Int64
}

// New creates a Cache.
func New(cfg Config, opts Options) *Cache {
	def := DefaultConfig()
	if cfg.MinimalUsageThreshold <= 0 {
		cfg.MinimalUsageThreshold = 1
	}
	if cfg.AnteroomCapacity <= 0 {
		cfg.AnteroomCapacity = def.AnteroomCapacity
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.PersistConcurrency <= 0 {
		cfg.PersistConcurrency = def.PersistConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Cache{
		cfg:      cfg,
		sched:    opts.Scheduler,
		rc:       opts.Controller,
		logger:   logger,
		eden:     newLRU(cfg.MaxBytes, opts.Controller),
		anteroom: make(map[Key]*adept),
	}
	c.eden.onEvict = func(*Payload) { c.evicted.Add(1) }
	return c
}

// Eligible reports whether f may be cached: it is cacheable, reads at least
// one transactional source and is expensive enough to be worth storing.
func (c *Cache) Eligible(f *formula.Formula) bool {
	if f == nil || f.Kind() == formula.KindFlattened {
		return false
	}
	return f.Cacheable() &&
		len(f.Dependencies()) > 0 &&
		f.EstimatedCost() >= c.cfg.MinimalComplexityThreshold
}

// Lookup returns a flattened surrogate for f if a valid payload is stored.
// A payload computed from another version of any source, or from a source
// f no longer reads, is evicted and reported as a miss.
func (c *Cache) Lookup(f *formula.Formula) (*formula.Formula, bool) {
	if !c.Eligible(f) {
		return nil, false
	}
	key := KeyOf(f)
	p, ok := c.eden.get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if !valid(p, f.Dependencies()) {
		c.eden.remove(key)
		c.stale.Add(1)
		c.misses.Add(1)
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, "stale cache payload evicted",
			slog.String("key", key.String()),
		)
		return nil, false
	}
	c.hits.Add(1)
	return p.Formula(), true
}

// valid reports whether every recorded dependency is still read by the
// formula at the recorded version. A reader on an older snapshot sees older
// versions and must not be served results computed from newer ones.
func valid(p *Payload, current []formula.Dependency) bool {
	for _, rec := range p.Dependencies {
		i, found := slices.BinarySearchFunc(current, rec.ID, func(d formula.Dependency, id uint64) int {
			return cmp.Compare(d.ID, id)
		})
		if !found || current[i].Version != rec.Version {
			return false
		}
	}
	return true
}

// Enrich returns f with every subtree that has a valid payload replaced by
// its flattened surrogate. Eligible subtrees without a payload are counted
// in the anteroom.
func (c *Cache) Enrich(f *formula.Formula) *formula.Formula {
	var seen []*formula.Formula
	out := formula.Rewrite(f, func(n *formula.Formula) *formula.Formula {
		if r, ok := c.Lookup(n); ok {
			return r
		}
		if c.Eligible(n) {
			seen = append(seen, n)
		}
		return n
	})
	if len(seen) > 0 {
		c.register(seen)
	}
	return out
}

func (c *Cache) register(fs []*formula.Formula) {
	c.mu.Lock()
	for _, f := range fs {
		key := KeyOf(f)
		a, ok := c.anteroom[key]
		if !ok {
			a = &adept{}
			c.anteroom[key] = a
		}
		a.usage++
		if !a.measured {
			a.ratio = float64(f.EstimatedCost()) / float64(max(1, f.EstimatedCardinality()))
		}
	}
	overflow := len(c.anteroom) > c.cfg.AnteroomCapacity
	c.mu.Unlock()

	if overflow {
		c.scheduleEvaluation()
	}
}

// Record stores the results of computed subtrees of f whose usage reached
// the threshold. It returns the number of admitted payloads.
func (c *Cache) Record(f *formula.Formula) int {
	var admitted int
	formula.Walk(f, func(n *formula.Formula) bool {
		if !n.Computed() || !c.Eligible(n) {
			return n.Computed()
		}
		key := KeyOf(n)
		if c.eden.contains(key) {
			return true
		}

		c.mu.Lock()
		a, ok := c.anteroom[key]
		ready := ok && a.usage >= c.cfg.MinimalUsageThreshold
		if ready {
			delete(c.anteroom, key)
		} else if ok {
			a.ratio = n.CostToPerformanceRatio()
			a.measured = true
		}
		c.mu.Unlock()
		if !ready {
			return true
		}

		if c.eden.set(NewPayload(n)) {
			admitted++
			c.admitted.Add(1)
		}
		return true
	})
	return admitted
}

// Store admits the computed result of f directly, bypassing the anteroom.
func (c *Cache) Store(f *formula.Formula) bool {
	if !f.Computed() || !c.Eligible(f) {
		return false
	}
	if !c.eden.set(NewPayload(f)) {
		return false
	}
	c.admitted.Add(1)
	return true
}

// InvalidateSources evicts every payload computed from any of the source
// ids. It returns the number of evicted payloads.
func (c *Cache) InvalidateSources(ids ...uint64) int {
	if len(ids) == 0 {
		return 0
	}
	return c.eden.invalidate(func(p *Payload) bool {
		return slices.ContainsFunc(p.Dependencies, func(d formula.Dependency) bool {
			return slices.Contains(ids, d.ID)
		})
	})
}

// Clear drops all payloads and adepts.
func (c *Cache) Clear() {
	c.eden.clear()
	c.mu.Lock()
	clear(c.anteroom)
	c.mu.Unlock()
}

func (c *Cache) scheduleEvaluation() {
	if !c.evaluating.CompareAndSwap(false, true) {
		return
	}
	if c.sched == nil {
		c.evaluate(context.Background())
		return
	}

	err := c.sched.Submit(edenTask, c.evaluate)
	if err == nil {
		return
	}
	c.evaluating.Store(false)
	if errors.Is(err, scheduler.ErrRejectedScheduling) {
		c.rejections.Add(1)
	}
	// Without a background slot the anteroom is trimmed in place so it
	// cannot grow without bound.
	c.logger.LogAttrs(context.Background(), slog.LevelWarn, "eden evaluation not scheduled, trimming anteroom",
		slog.String("error", err.Error()),
	)
	c.trim(c.cfg.AnteroomCapacity)
}

// evaluate keeps the most valuable half of the anteroom.
func (c *Cache) evaluate(ctx context.Context) {
	defer c.evaluating.Store(false)
	if ctx.Err() != nil {
		return
	}
	c.evaluations.Add(1)
	dropped := c.trim(c.cfg.AnteroomCapacity / 2)
	c.logger.LogAttrs(ctx, slog.LevelDebug, "eden evaluation finished",
		slog.Int("dropped", dropped),
		slog.Int("payloads", c.eden.len()),
	)
}

// trim drops the least valuable adepts until at most limit remain.
func (c *Cache) trim(limit int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	excess := len(c.anteroom) - limit
	if excess <= 0 {
		return 0
	}
	keys := slices.SortedFunc(maps.Keys(c.anteroom), func(a, b Key) int {
		return cmp.Compare(c.anteroom[a].value(), c.anteroom[b].value())
	})
	for _, k := range keys[:excess] {
		delete(c.anteroom, k)
	}
	return excess
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	adepts := len(c.anteroom)
	c.mu.Unlock()
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Stale:       c.stale.Load(),
		Admitted:    c.admitted.Load(),
		Evicted:     c.evicted.Load(),
		Entries:     c.eden.len(),
		Adepts:      adepts,
		StoredBytes: c.eden.bytes(),
		Evaluations: c.evaluations.Load(),
		Rejections:  c.rejections.Load(),
	}
}
