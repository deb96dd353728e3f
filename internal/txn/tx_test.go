package txn

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu        sync.Mutex
	commits   []error
	versions  []uint64
	rollbacks []int
}

func (o *recordingObserver) OnCommit(version uint64, _ int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commits = append(o.commits, err)
	o.versions = append(o.versions, version)
}

func (o *recordingObserver) OnRollback(layers int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rollbacks = append(o.rollbacks, layers)
}

func TestBoolean_IsolationAcrossGoroutines(t *testing.T) {
	mgr := NewManager(Config{})
	flag := NewBoolean(false)

	tx := mgr.Begin()
	require.NoError(t, flag.SetToTrue(tx))
	assert.True(t, flag.IsSet(tx))

	seen := make(chan bool)
	go func() { seen <- flag.IsSet(nil) }()
	assert.False(t, <-seen)

	require.NoError(t, tx.Commit())

	go func() { seen <- flag.IsSet(nil) }()
	assert.True(t, <-seen)
}

func TestBoolean_OtherTransactionDoesNotSeeChanges(t *testing.T) {
	mgr := NewManager(Config{})
	flag := NewBoolean(false)

	tx1 := mgr.Begin()
	tx2 := mgr.Begin()
	defer tx2.Rollback()

	require.NoError(t, flag.SetToTrue(tx1))
	assert.False(t, flag.IsSet(tx2))
	require.NoError(t, tx1.Commit())

	// tx2 keeps reading the state it began with.
	assert.False(t, flag.IsSet(tx2))
	assert.Equal(t, uint64(0), flag.VersionAt(tx2))

	tx3 := mgr.Begin()
	defer tx3.Rollback()
	assert.True(t, flag.IsSet(tx3))
	assert.True(t, flag.IsSet(nil))
	assert.Equal(t, uint64(1), flag.VersionAt(tx3))
	assert.Equal(t, uint64(1), flag.Version())
}

func TestMap_LayerStartsFromSnapshot(t *testing.T) {
	mgr := NewManager(Config{})
	m := NewMap[string, int]()
	require.NoError(t, m.Put(nil, "a", 1))

	tx := mgr.Begin()
	defer tx.Rollback()
	assert.Equal(t, 1, m.Len(tx))

	other := mgr.Begin()
	require.NoError(t, m.Put(other, "b", 2))
	require.NoError(t, other.Commit())

	require.NoError(t, m.Put(tx, "c", 3))
	assert.ElementsMatch(t, []string{"a", "c"}, m.Keys(tx))

	// Commit replays the writes of tx onto the newest map.
	require.NoError(t, tx.Commit())
	assert.ElementsMatch(t, []string{"a", "b", "c"}, m.Keys(nil))
}

func TestTx_CommitIsAtomicForReaders(t *testing.T) {
	const (
		producers = 200
		commits   = 200
	)
	mgr := NewManager(Config{})
	bitmaps := make([]*Bitmap, producers)
	for i := range bitmaps {
		bitmaps[i] = NewBitmap()
	}
	first, last := bitmaps[0], bitmaps[producers-1]

	var (
		wg          sync.WaitGroup
		stop        atomic.Bool
		tornLatest  atomic.Int64
		tornReads   atomic.Int64
		unstableTxs atomic.Int64
	)

	// Readers without a transaction must never see a commit half applied.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			for i := uint32(1); i <= commits; i++ {
				if first.Contains(nil, i) && !last.Contains(nil, i) {
					tornLatest.Add(1)
				}
			}
		}
	}()

	// Readers in a transaction must see one state throughout.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			tx := mgr.Begin()
			before := first.Cardinality(tx)
			if last.Cardinality(tx) != before {
				tornReads.Add(1)
			}
			runtime.Gosched()
			if first.Cardinality(tx) != before || last.Cardinality(tx) != before {
				unstableTxs.Add(1)
			}
			tx.Rollback()
		}
	}()

	for i := uint32(1); i <= commits; i++ {
		tx := mgr.Begin()
		for _, b := range bitmaps {
			require.NoError(t, b.Add(tx, i))
		}
		require.NoError(t, tx.Commit())
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, tornLatest.Load())
	assert.Zero(t, tornReads.Load())
	assert.Zero(t, unstableTxs.Load())
	assert.Equal(t, commits, last.Cardinality(nil))
}

func chainLen[T any](b *base[T]) int {
	n := 0
	for e := b.state.head.Load(); e != nil; e = e.prev.Load() {
		n++
	}
	return n
}

func TestTx_OldStatesAreDropped(t *testing.T) {
	mgr := NewManager(Config{})
	ref := NewReference(0)

	reader := mgr.Begin()
	for i := 1; i <= 10; i++ {
		tx := mgr.Begin()
		require.NoError(t, ref.Set(tx, i))
		require.NoError(t, tx.Commit())
	}

	// The open reader pins the initial state.
	assert.Equal(t, 0, ref.Get(reader))
	assert.Equal(t, 10, ref.Get(nil))
	assert.Greater(t, chainLen(&ref.base), 2)

	reader.Rollback()
	tx := mgr.Begin()
	require.NoError(t, ref.Set(tx, 11))
	require.NoError(t, tx.Commit())

	assert.LessOrEqual(t, chainLen(&ref.base), 2)
	assert.Equal(t, 11, ref.Get(nil))
}

func TestMap_StaleDetection(t *testing.T) {
	mgr := NewManager(Config{})
	m := NewMap[string, int]()

	tx := mgr.Begin()
	require.NoError(t, m.Put(tx, "a", 1))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// No transaction bound to this goroutine: writes the shared map.
		_ = m.Put(nil, "b", 2)
	}()
	wg.Wait()

	err := tx.Verify()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleTransactionalMemory)

	err = tx.Commit()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleTransactionalMemory)

	var stale *StaleError
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, m.ID(), stale.ProducerID)
	assert.Equal(t, tx.ID(), stale.TxID)

	// Nothing from the failed transaction is visible.
	_, ok := m.Get(nil, "a")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len(nil))
}

func TestTx_UseAfterEnd(t *testing.T) {
	mgr := NewManager(Config{})
	m := NewMap[string, int]()

	tx := mgr.Begin()
	require.NoError(t, m.Put(tx, "a", 1))
	require.NoError(t, tx.Commit())

	err := m.Put(tx, "b", 2)
	assert.ErrorIs(t, err, ErrStaleTransactionalMemory)
	assert.ErrorIs(t, tx.Commit(), ErrStaleTransactionalMemory)

	// Reads through a finished transaction fall back to the shared value.
	v, ok := m.Get(tx, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	rolled := mgr.Begin()
	rolled.Rollback()
	assert.ErrorIs(t, m.Put(rolled, "c", 3), ErrStaleTransactionalMemory)
	assert.ErrorIs(t, rolled.Verify(), ErrStaleTransactionalMemory)
}

func TestTx_Rollback(t *testing.T) {
	obs := &recordingObserver{}
	mgr := NewManager(Config{Observer: obs})
	flag := NewBoolean(false)
	ref := NewReference("initial")

	tx := mgr.Begin()
	require.NoError(t, flag.SetToTrue(tx))
	require.NoError(t, ref.Set(tx, "changed"))
	assert.Equal(t, 2, tx.Maintainer().Len())

	tx.Rollback()
	tx.Rollback()

	assert.False(t, tx.Active())
	assert.False(t, flag.IsSet(nil))
	assert.Equal(t, "initial", ref.Get(nil))
	assert.Equal(t, 0, tx.Maintainer().Len())
	assert.Equal(t, []int{2}, obs.rollbacks)
	assert.Equal(t, uint64(0), mgr.Version())
}

func TestTx_NilTransaction(t *testing.T) {
	var tx *Tx
	assert.ErrorIs(t, tx.Commit(), ErrStaleTransactionalMemory)
	assert.NotPanics(t, tx.Rollback)
	assert.False(t, tx.Active())
}

func TestTx_RollbackAfterCommitIsIgnored(t *testing.T) {
	mgr := NewManager(Config{})
	flag := NewBoolean(false)

	tx := mgr.Begin()
	defer tx.Rollback()
	require.NoError(t, flag.SetToTrue(tx))
	require.NoError(t, tx.Commit())
	tx.Rollback()

	assert.True(t, flag.IsSet(nil))
}

func TestTx_CommitVersions(t *testing.T) {
	obs := &recordingObserver{}
	mgr := NewManager(Config{Observer: obs})
	flag := NewBoolean(false)
	ref := NewReference(0)

	assert.Equal(t, uint64(0), flag.Version())

	tx := mgr.Begin()
	require.NoError(t, flag.SetToTrue(tx))
	require.NoError(t, tx.Commit())
	assert.Equal(t, uint64(1), mgr.Version())
	assert.Equal(t, uint64(1), flag.Version())
	assert.Equal(t, uint64(0), ref.Version())

	tx = mgr.Begin()
	assert.Equal(t, uint64(1), tx.BaseVersion())
	require.NoError(t, ref.Set(tx, 7))
	require.NoError(t, tx.Commit())
	assert.Equal(t, uint64(2), ref.Version())

	// An empty transaction does not advance the version.
	require.NoError(t, mgr.Begin().Commit())
	assert.Equal(t, uint64(2), mgr.Version())

	// Writes outside a transaction bump the producer version.
	require.NoError(t, ref.Set(nil, 8))
	assert.Equal(t, uint64(3), ref.Version())

	assert.Equal(t, []uint64{1, 2, 2}, obs.versions)
}

func TestTx_ForeignLayerIsStale(t *testing.T) {
	mgr := NewManager(Config{})
	flag := NewBoolean(false)

	tx1 := mgr.Begin()
	defer tx1.Rollback()
	tx2 := mgr.Begin()
	defer tx2.Rollback()

	layer, err := GetOrCreateLayer[*BooleanChanges, bool](tx1, flag)
	require.NoError(t, err)

	_, err = flag.CreateCopyWithMergedLayer(layer, tx2.Maintainer())
	assert.ErrorIs(t, err, ErrStaleTransactionalMemory)

	_, err = flag.CreateCopyWithMergedLayer(layer, tx1.Maintainer())
	assert.NoError(t, err)
}

func TestTx_SameLayerOnRepeatedTouch(t *testing.T) {
	mgr := NewManager(Config{})
	ref := NewReference(1)

	tx := mgr.Begin()
	defer tx.Rollback()

	l1, err := GetOrCreateLayer[*ReferenceChanges[int], *int](tx, ref)
	require.NoError(t, err)
	l2, err := GetOrCreateLayer[*ReferenceChanges[int], *int](tx, ref)
	require.NoError(t, err)
	assert.Same(t, l1, l2)
	assert.True(t, tx.Maintainer().Contains(ref.ID()))
}

func TestNextID_Monotonic(t *testing.T) {
	a := NextID()
	b := NextID()
	assert.NotZero(t, a)
	assert.Greater(t, b, a)
}
