package txn

import (
	"math/rand/v2"
	"sync/atomic"
)

var (
	idSequence atomic.Uint64
	epoch      = rand.Uint64()
)

// Epoch identifies the id space of this process. Ids handed out under
// different epochs are unrelated, so data keyed by producer ids must not
// cross epochs.
func Epoch() uint64 {
	return epoch
}

// NextID returns the next producer id. Ids are unique per process and
// monotonically increasing; zero is never returned.
func NextID() uint64 {
	return idSequence.Add(1)
}

// Producer is implemented by every transactional primitive.
//
// C is the private per-transaction changes object, R the merged shared value
// that replaces the current one on commit.
type Producer[C, R any] interface {
	// ID returns the unique id used as key in a Maintainer.
	ID() uint64
	// CreateLayer creates a fresh changes object seeded from the state
	// visible to tx.
	CreateLayer(tx *Tx) C
	// CreateCopyWithMergedLayer merges a finished transaction's changes into
	// a new shared value. It must not mutate the current shared value.
	CreateCopyWithMergedLayer(layer C, m *Maintainer) (R, error)
	// Publish adds the merged value to the shared state as part of c. It
	// becomes visible when c completes.
	Publish(value R, c *Commit)
	// RemoveLayer discards the transaction's private state.
	RemoveLayer(m *Maintainer)
}

// base carries the bookkeeping shared by all primitives: the id and the
// chain of published states.
type base[T any] struct {
	id    uint64
	state chain[T]
	// untracked counts writes made without a transaction.
	untracked atomic.Uint64
}

func (b *base[T]) init(value T) {
	b.id = NextID()
	b.state.init(value)
}

// ID returns the producer id.
func (b *base[T]) ID() uint64 {
	return b.id
}

// Version returns the version of the latest visible state.
func (b *base[T]) Version() uint64 {
	return b.state.latest().version
}

// VersionAt returns the version of the state tx reads when it has no
// changes of its own.
func (b *base[T]) VersionAt(tx *Tx) uint64 {
	return b.snapshot(tx).version
}

// snapshot returns the published state visible to tx. An active
// transaction reads as of its base version; everybody else reads the
// latest visible state.
func (b *base[T]) snapshot(tx *Tx) *entry[T] {
	if tx.Active() {
		return b.state.at(tx.BaseVersion())
	}
	return b.state.latest()
}

// load returns the published value visible to tx.
func (b *base[T]) load(tx *Tx) T {
	return b.snapshot(tx).value
}

// publish implements the Publish half of Producer.
func (b *base[T]) publish(value T, c *Commit) {
	b.state.publish(value, c)
}

// write applies fn to the latest state outside any transaction.
func (b *base[T]) write(fn func(T) (T, bool, error)) (bool, error) {
	changed, err := b.state.replace(fn)
	if changed {
		b.untracked.Add(1)
	}
	return changed, err
}

func (b *base[T]) untrackedWrites() uint64 {
	return b.untracked.Load()
}

type untrackedCounter interface {
	untrackedWrites() uint64
}

// layerBase binds a changes object to the maintainer that registered it.
type layerBase struct {
	owner *Maintainer
}

func (l *layerBase) bind(m *Maintainer) {
	l.owner = m
}

func (l *layerBase) checkOwner(m *Maintainer, producerID uint64) error {
	if l.owner == nil || l.owner != m {
		return staleError(m.Tx(), producerID, "layer is not registered in this transaction")
	}
	return nil
}

type binder interface {
	bind(m *Maintainer)
}
