package txn

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Observer receives transaction lifecycle events.
type Observer interface {
	OnCommit(version uint64, layers int, duration time.Duration, err error)
	OnRollback(layers int)
}

// Config configures a Manager.
type Config struct {
	// Logger receives lifecycle logs. If nil, logs are discarded.
	Logger *slog.Logger
	// Observer receives lifecycle events. Optional.
	Observer Observer
}

// Manager creates transactions and serializes their commits.
//
// Every transaction reads the state of the last commit completed before it
// began. The manager remembers which commit versions open transactions
// read, so older states can be dropped.
type Manager struct {
	mu       sync.Mutex // serializes commits
	version  atomic.Uint64
	txSeq    atomic.Uint64
	logger   *slog.Logger
	observer Observer

	readersMu sync.Mutex
	readers   map[uint64]int // base version -> open transactions
}

// NewManager creates a new transaction manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		logger:   logger,
		observer: cfg.Observer,
		readers:  make(map[uint64]int),
	}
}

// Version returns the version of the last commit.
func (mgr *Manager) Version() uint64 {
	return mgr.version.Load()
}

// Begin starts a new transaction.
//
// The returned Tx is owned by the calling goroutine: its changes objects are
// not synchronized and must not be used concurrently.
func (mgr *Manager) Begin() *Tx {
	mgr.readersMu.Lock()
	base := mgr.version.Load()
	mgr.readers[base]++
	mgr.readersMu.Unlock()

	tx := &Tx{
		id:          mgr.txSeq.Add(1),
		mgr:         mgr,
		baseVersion: base,
	}
	tx.maintainer = &Maintainer{
		tx:     tx,
		layers: make(map[uint64]*layerEntry),
	}
	tx.state.Store(int32(stateActive))
	return tx
}

// release forgets the snapshot of a finished transaction.
func (mgr *Manager) release(tx *Tx) {
	mgr.readersMu.Lock()
	defer mgr.readersMu.Unlock()
	if mgr.readers[tx.baseVersion]--; mgr.readers[tx.baseVersion] <= 0 {
		delete(mgr.readers, tx.baseVersion)
	}
}

// horizon returns the oldest commit version an open transaction reads.
func (mgr *Manager) horizon() uint64 {
	mgr.readersMu.Lock()
	defer mgr.readersMu.Unlock()
	h := mgr.version.Load()
	for v := range mgr.readers {
		h = min(h, v)
	}
	return h
}

type txState int32

const (
	stateActive txState = iota
	stateCommitting
	stateCommitted
	stateRolledBack
)

func (s txState) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateCommitting:
		return "committing"
	case stateCommitted:
		return "committed"
	case stateRolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Tx is an explicit transaction handle.
//
// Every transactional primitive takes a *Tx. An active Tx reads a snapshot:
// the state of the last commit completed before Begin, overlaid with its own
// changes. A nil *Tx reads the latest completed commit and writes the shared
// state directly (single writer, no isolation).
type Tx struct {
	id          uint64
	mgr         *Manager
	maintainer  *Maintainer
	baseVersion uint64
	state       atomic.Int32
}

// ID returns the transaction id.
func (tx *Tx) ID() uint64 {
	return tx.id
}

// BaseVersion returns the commit version visible when the transaction began.
func (tx *Tx) BaseVersion() uint64 {
	return tx.baseVersion
}

// Active reports whether the transaction can still be used.
func (tx *Tx) Active() bool {
	return tx != nil && txState(tx.state.Load()) == stateActive
}

// Maintainer returns the changes registry of the transaction.
func (tx *Tx) Maintainer() *Maintainer {
	return tx.maintainer
}

// Verify checks that no registered producer was mutated outside the
// transaction since its layer was created.
func (tx *Tx) Verify() error {
	if !tx.Active() {
		return staleError(tx, 0, "transaction is "+txState(tx.state.Load()).String())
	}
	return tx.maintainer.verify()
}

// Commit merges all changes into new shared values and publishes them.
//
// Any error is fatal to the transaction: its changes are discarded.
func (tx *Tx) Commit() error {
	if tx == nil {
		return staleError(nil, 0, "nil transaction")
	}
	return tx.mgr.commit(tx)
}

// Rollback discards all changes. It is safe to call Rollback multiple times;
// a Rollback after Commit is ignored, so `defer tx.Rollback()` is the
// expected idiom.
func (tx *Tx) Rollback() {
	if tx == nil || !tx.state.CompareAndSwap(int32(stateActive), int32(stateRolledBack)) {
		return
	}
	layers := tx.maintainer.discard()
	tx.mgr.release(tx)
	tx.mgr.logger.LogAttrs(context.Background(), slog.LevelDebug, "transaction rolled back",
		slog.Uint64("tx", tx.id),
		slog.Int("layers", layers),
	)
	if tx.mgr.observer != nil {
		tx.mgr.observer.OnRollback(layers)
	}
}

func (mgr *Manager) commit(tx *Tx) error {
	if !tx.state.CompareAndSwap(int32(stateActive), int32(stateCommitting)) {
		return staleError(tx, 0, "transaction is "+txState(tx.state.Load()).String())
	}

	start := time.Now()
	layers := len(tx.maintainer.order)

	mgr.mu.Lock()
	version, err := mgr.commitLocked(tx)
	mgr.mu.Unlock()

	tx.maintainer.discard()
	mgr.release(tx)
	if err != nil {
		tx.state.Store(int32(stateRolledBack))
		mgr.logger.LogAttrs(context.Background(), slog.LevelError, "transaction commit failed",
			slog.Uint64("tx", tx.id),
			slog.Int("layers", layers),
			slog.Any("error", err),
		)
	} else {
		tx.state.Store(int32(stateCommitted))
		mgr.logger.LogAttrs(context.Background(), slog.LevelDebug, "transaction committed",
			slog.Uint64("tx", tx.id),
			slog.Uint64("version", version),
			slog.Int("layers", layers),
		)
	}
	if mgr.observer != nil {
		mgr.observer.OnCommit(version, layers, time.Since(start), err)
	}
	return err
}

func (mgr *Manager) commitLocked(tx *Tx) (uint64, error) {
	m := tx.maintainer
	if err := m.verify(); err != nil {
		return 0, err
	}
	if len(m.order) == 0 {
		return mgr.version.Load(), nil
	}

	// Merge everything first so a failing producer leaves shared state untouched.
	publishers := make([]func(*Commit), 0, len(m.order))
	for _, id := range m.order {
		publish, err := m.layers[id].merge(m)
		if err != nil {
			return 0, err
		}
		publishers = append(publishers, publish)
	}

	c := &Commit{version: mgr.version.Load() + 1, horizon: mgr.horizon()}
	for _, publish := range publishers {
		publish(c)
	}
	// Readers see all published values from here on. Transactions begun
	// before the version is stored still read the previous commit.
	c.done.Store(true)
	mgr.version.Store(c.version)
	return c.version, nil
}

// Maintainer is the per-transaction registry mapping producer id to its
// changes object.
type Maintainer struct {
	tx     *Tx
	layers map[uint64]*layerEntry
	order  []uint64
}

type layerEntry struct {
	layer  any
	verify func() error
	merge  func(m *Maintainer) (func(c *Commit), error)
	remove func(m *Maintainer)
}

// Tx returns the owning transaction. It is nil-safe.
func (m *Maintainer) Tx() *Tx {
	if m == nil {
		return nil
	}
	return m.tx
}

// Len returns the number of registered layers.
func (m *Maintainer) Len() int {
	return len(m.order)
}

// Contains reports whether a layer is registered for the producer id.
func (m *Maintainer) Contains(id uint64) bool {
	_, ok := m.layers[id]
	return ok
}

// remove unregisters the layer of a producer.
func (m *Maintainer) remove(id uint64) {
	if _, ok := m.layers[id]; !ok {
		return
	}
	delete(m.layers, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Maintainer) verify() error {
	for _, id := range m.order {
		if err := m.layers[id].verify(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Maintainer) discard() int {
	n := len(m.order)
	ids := append([]uint64(nil), m.order...)
	for _, id := range ids {
		if e, ok := m.layers[id]; ok {
			e.remove(m)
		}
	}
	m.layers = make(map[uint64]*layerEntry)
	m.order = nil
	return n
}

// GetOrCreateLayer returns the changes object of p in tx, creating and
// registering it on first touch.
func GetOrCreateLayer[C, R any](tx *Tx, p Producer[C, R]) (C, error) {
	var zero C
	if !tx.Active() {
		return zero, staleError(tx, p.ID(), "write outside an active transaction")
	}

	m := tx.maintainer
	if e, ok := m.layers[p.ID()]; ok {
		layer, ok := e.layer.(C)
		if !ok {
			return zero, staleError(tx, p.ID(), "registered layer has an unexpected type")
		}
		return layer, nil
	}

	layer := p.CreateLayer(tx)
	if b, ok := any(layer).(binder); ok {
		b.bind(m)
	}

	var seen uint64
	counter, tracked := any(p).(untrackedCounter)
	if tracked {
		seen = counter.untrackedWrites()
	}

	m.layers[p.ID()] = &layerEntry{
		layer: layer,
		verify: func() error {
			if tracked && counter.untrackedWrites() != seen {
				return staleError(tx, p.ID(), "shared state was mutated outside the transaction")
			}
			return nil
		},
		merge: func(m *Maintainer) (func(*Commit), error) {
			value, err := p.CreateCopyWithMergedLayer(layer, m)
			if err != nil {
				return nil, err
			}
			return func(c *Commit) { p.Publish(value, c) }, nil
		},
		remove: p.RemoveLayer,
	}
	m.order = append(m.order, p.ID())
	return layer, nil
}

// LayerIfExists returns the changes object registered for the producer id in
// tx. It reports false for a nil or finished transaction, in which case the
// caller reads the shared state.
func LayerIfExists[C any](tx *Tx, id uint64) (C, bool) {
	var zero C
	if !tx.Active() {
		return zero, false
	}
	e, ok := tx.maintainer.layers[id]
	if !ok {
		return zero, false
	}
	layer, ok := e.layer.(C)
	return layer, ok
}
