package formula

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bitdb/internal/bitmap"
	"github.com/hupe1980/bitdb/internal/txn"
)

type fakeSource struct {
	id      uint64
	version uint64
	b       *bitmap.Bitmap
	pending bool
	reads   atomic.Int64
}

func (s *fakeSource) ID() uint64              { return s.id }
func (s *fakeSource) Version() uint64         { return s.version }
func (s *fakeSource) Cardinality() int        { return s.b.Cardinality() }
func (s *fakeSource) HasPendingChanges() bool { return s.pending }
func (s *fakeSource) Bitmap() *bitmap.Bitmap {
	s.reads.Add(1)
	return s.b
}

func ids(f *Formula) []uint32 {
	return f.Compute().ToArray()
}

func TestFormula_Scenario(t *testing.T) {
	a := Constant(bitmap.Of(1, 2, 3, 8))
	b := Constant(bitmap.Of(2, 3, 5))

	assert.Equal(t, []uint32{2, 3}, ids(And(a, b)))
	assert.Equal(t, []uint32{1, 2, 3, 5, 8}, ids(Or(a, b)))
	assert.Equal(t, []uint32{4, 5, 6, 7, 9, 10}, ids(Not(a, Constant(bitmap.Range(1, 11)))))
}

func TestFormula_ScenarioOverTransactionalSources(t *testing.T) {
	mgr := txn.NewManager(txn.Config{})
	a := txn.NewBitmap(1, 2, 3)
	b := txn.NewBitmap(2, 3, 5)

	tx := mgr.Begin()
	defer tx.Rollback()
	require.NoError(t, a.Add(tx, 8))

	f := And(FromSource(a.View(tx)), FromSource(b.View(tx)))
	assert.Equal(t, []uint32{2, 3}, ids(f))
	assert.False(t, f.Cacheable())

	g := Or(FromSource(a.View(nil)), FromSource(b.View(nil)))
	assert.Equal(t, []uint32{1, 2, 3, 5}, ids(g))
	assert.True(t, g.Cacheable())
	assert.Equal(t, []uint64{a.ID(), b.ID()}, g.TransactionalIDs())
}

func TestFactory_IdentityElimination(t *testing.T) {
	f := Constant(bitmap.Of(1))

	assert.Same(t, f, Or(f))
	assert.Same(t, f, And(f))
	assert.Same(t, Empty(), And())
	assert.Same(t, Empty(), Or())
	assert.Same(t, f, And(f, Skip()))
	assert.Same(t, f, Or(Skip(), f, Empty()))
}

func TestFactory_EmptyCollapsesAnd(t *testing.T) {
	f := And(Constant(bitmap.Of(1)), Empty(), Constant(bitmap.Of(2)))
	assert.Same(t, Empty(), f)
}

func TestFactory_FlatteningIdempotence(t *testing.T) {
	a := Constant(bitmap.Of(1, 2))
	b := Constant(bitmap.Of(2, 3))
	c := Constant(bitmap.Of(2, 4))

	nested := And(And(a, b), c)
	flat := And(a, b, c)

	assert.Equal(t, KindAnd, nested.Kind())
	assert.Equal(t, flat.Children(), nested.Children())
	assert.Equal(t, flat.Hash(), nested.Hash())

	orNested := Or(a, Or(b, c))
	orFlat := Or(a, b, c)
	assert.Len(t, orNested.Children(), 3)
	assert.Equal(t, orFlat.Hash(), orNested.Hash())

	// Different kinds are not merged.
	mixed := And(Or(a, b), c)
	assert.Len(t, mixed.Children(), 2)
	assert.Equal(t, KindOr, mixed.Children()[0].Kind())
}

func TestFactory_NotAlwaysWraps(t *testing.T) {
	f := Not(Empty(), Constant(bitmap.Of(1, 2)))
	assert.Equal(t, KindNot, f.Kind())
	assert.Equal(t, []uint32{1, 2}, ids(f))
}

func TestFutureNot_Construction(t *testing.T) {
	universe := func() *Formula { return Constant(bitmap.Range(0, 10)) }
	a := Constant(bitmap.Of(1))

	_, err := NewFutureNot(universe)
	require.ErrorIs(t, err, ErrInvalidFormulaConstruction)

	_, err = NewFutureNot(universe, a, a)
	var ce *ConstructionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindFutureNot, ce.Kind)

	_, err = NewFutureNot(nil, a)
	assert.ErrorIs(t, err, ErrInvalidFormulaConstruction)

	f, err := NewFutureNot(universe, a)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 2, 3, 4, 5, 6, 7, 8, 9}, ids(f))
	assert.False(t, f.Cacheable())
}

func TestFutureNot_PromotedByAnd(t *testing.T) {
	var supplied atomic.Int32
	universe := func() *Formula {
		supplied.Add(1)
		return Constant(bitmap.Range(0, 100))
	}
	neg1, err := NewFutureNot(universe, Constant(bitmap.Of(2)))
	require.NoError(t, err)
	neg2, err := NewFutureNot(universe, Constant(bitmap.Of(3)))
	require.NoError(t, err)
	pos := Constant(bitmap.Of(1, 2, 3, 4))

	f := And(pos, neg1, neg2)
	require.Equal(t, KindNot, f.Kind())
	assert.Equal(t, KindOr, f.Children()[0].Kind())
	assert.Same(t, pos, f.Children()[1])
	assert.Equal(t, []uint32{1, 4}, ids(f))
	assert.Zero(t, supplied.Load())

	// Only negations: still deferred to the super-set.
	g := And(neg1, neg2)
	require.Equal(t, KindFutureNot, g.Kind())
	assert.Equal(t, 98, g.Compute().Cardinality())
	assert.Equal(t, int32(1), supplied.Load())
}

func TestFormula_AttributeScoping(t *testing.T) {
	inner := Constant(bitmap.Of(5, 6))
	f := Attribute("color", "en", inner)
	assert.Equal(t, []uint32{5, 6}, ids(f))
	assert.Equal(t, "color", f.Name())
	assert.Equal(t, "en", f.Locale())
}

func TestFormula_HashStability(t *testing.T) {
	build := func(name, locale string, content ...uint32) *Formula {
		return And(
			Attribute(name, locale, Constant(bitmap.Of(content...))),
			Constant(bitmap.Of(1, 2, 3)),
		)
	}

	base := build("color", "en", 1, 2)
	assert.Equal(t, base.Hash(), build("color", "en", 1, 2).Hash())
	assert.NotEqual(t, base.Hash(), build("size", "en", 1, 2).Hash())
	assert.NotEqual(t, base.Hash(), build("color", "de", 1, 2).Hash())
	assert.NotEqual(t, base.Hash(), build("color", "en", 1, 3).Hash())

	// The kind participates in the hash.
	a := Constant(bitmap.Of(1))
	b := Constant(bitmap.Of(2))
	assert.NotEqual(t, And(a, b).Hash(), Or(a, b).Hash())
	// Child order is significant.
	assert.NotEqual(t, Not(a, b).Hash(), Not(b, a).Hash())
	// Name and locale boundaries do not collide.
	assert.NotEqual(t,
		Attribute("ab", "c", a).Hash(),
		Attribute("a", "bc", a).Hash(),
	)
}

func TestFormula_SourceHashIgnoresVersion(t *testing.T) {
	src := &fakeSource{id: 7, version: 1, b: bitmap.Of(1)}
	f1 := FromSource(src)
	src.version = 2
	f2 := FromSource(src)

	assert.Equal(t, f1.Hash(), f2.Hash())
	assert.NotEqual(t, f1.Dependencies(), f2.Dependencies())
	assert.NotEqual(t, f1.Hash(), FromSource(&fakeSource{id: 8, b: bitmap.Of(1)}).Hash())
}

func TestFormula_Dependencies(t *testing.T) {
	s1 := &fakeSource{id: 3, version: 5, b: bitmap.Of(1)}
	s2 := &fakeSource{id: 1, version: 2, b: bitmap.Of(1, 2)}
	d := Deferred(&FuncSupplier{
		Key:  99,
		Deps: []Dependency{{ID: 3, Version: 4}, {ID: 8, Version: 1}},
		Fn:   func() *bitmap.Bitmap { return bitmap.Of(1) },
	})

	f := Or(FromSource(s1), And(FromSource(s2), d))
	assert.Equal(t, []Dependency{{1, 2}, {3, 5}, {8, 1}}, f.Dependencies())
	assert.Equal(t, []uint64{1, 3, 8}, f.TransactionalIDs())
	// Ids are sorted, so child order does not affect the id hash.
	assert.Equal(t, Or(FromSource(s1), d).TransactionalIDHash(), Or(d, FromSource(s1)).TransactionalIDHash())
	assert.NotEqual(t, Or(FromSource(s1), d).TransactionalIDHash(), FromSource(s1).TransactionalIDHash())
}

func TestFormula_PendingSourceIsNotCacheable(t *testing.T) {
	clean := &fakeSource{id: 1, b: bitmap.Of(1)}
	dirty := &fakeSource{id: 2, b: bitmap.Of(1), pending: true}

	assert.True(t, And(FromSource(clean), Constant(bitmap.Of(1))).Cacheable())
	assert.False(t, Or(FromSource(clean), FromSource(dirty)).Cacheable())
	assert.False(t, Deferred(&FuncSupplier{NonCacheable: true}).Cacheable())
}

func TestFormula_ComputeIsMemoized(t *testing.T) {
	src := &fakeSource{id: 1, b: bitmap.Of(1, 2)}
	f := And(FromSource(src), Constant(bitmap.Of(2, 3)))

	assert.False(t, f.Computed())
	first := f.Compute()
	assert.True(t, f.Computed())
	assert.Same(t, first, f.Compute())
	assert.Equal(t, int64(1), src.reads.Load())
}

func TestFormula_ConcurrentComputeIsConsistent(t *testing.T) {
	var calls atomic.Int32
	f := Or(
		Deferred(&FuncSupplier{Key: 1, Fn: func() *bitmap.Bitmap {
			calls.Add(1)
			return bitmap.Of(1, 2, 3)
		}}),
		Constant(bitmap.Of(9)),
	)

	var wg sync.WaitGroup
	results := make([]*bitmap.Bitmap, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.Compute()
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestFormula_ShortCircuitAnd(t *testing.T) {
	var called bool
	f := And(
		Constant(bitmap.Of(1)),
		Constant(bitmap.New()),
		Deferred(&FuncSupplier{Key: 1, Fn: func() *bitmap.Bitmap {
			called = true
			return bitmap.Of(1)
		}}),
	)
	assert.True(t, f.Compute().IsEmpty())
	assert.False(t, called)
}

func TestFormula_CostModel(t *testing.T) {
	a := Constant(bitmap.Of(1, 2, 3, 4))
	b := Constant(bitmap.Of(3, 4, 5))
	f := And(a, b)

	assert.Equal(t, int64(7), f.OperationCost())
	assert.Equal(t, 3, f.EstimatedCardinality())
	// 4*1 + 3*1 + 3*7
	assert.Equal(t, int64(28), f.EstimatedCost())
	// 4*1 + 3*1 + 2*7
	assert.Equal(t, int64(21), f.Cost())
	assert.InDelta(t, 10.5, f.CostToPerformanceRatio(), 1e-9)

	or := Or(a, b)
	assert.Equal(t, 7, or.EstimatedCardinality())
	assert.Equal(t, int64(9), or.OperationCost())

	d := Deferred(&FuncSupplier{Key: 1, Estimate: 10})
	assert.Equal(t, DefaultSupplierOperationCost, d.OperationCost())
	assert.Equal(t, int64(310), d.EstimatedCost())
}

func TestFormula_FlattenedSurrogate(t *testing.T) {
	src := &fakeSource{id: 4, version: 2, b: bitmap.Of(1, 2, 3)}
	original := And(FromSource(src), Constant(bitmap.Of(2, 3, 4)))
	result := original.Compute()

	flat := Flattened(result, Recorded{
		Hash:         original.Hash(),
		Dependencies: original.Dependencies(),
		Cost:         original.Cost(),
	})
	assert.Equal(t, original.Hash(), flat.Hash())
	assert.Equal(t, original.TransactionalIDs(), flat.TransactionalIDs())
	assert.Equal(t, original.Cost(), flat.Cost())
	assert.Equal(t, []uint32{2, 3}, ids(flat))

	// A parent over the surrogate hashes like the parent over the original.
	other := Constant(bitmap.Of(3))
	assert.Equal(t, Or(original, other).Hash(), Or(flat, other).Hash())
}

func TestRewrite_KeepsUnchangedSubtrees(t *testing.T) {
	a := Constant(bitmap.Of(1))
	b := Constant(bitmap.Of(2))
	c := Constant(bitmap.Of(3))
	inner := And(a, b)
	f := Or(inner, c)

	same := Rewrite(f, func(n *Formula) *Formula { return n })
	assert.Same(t, f, same)

	replaced := Rewrite(f, func(n *Formula) *Formula {
		if n == c {
			return Constant(bitmap.Of(4))
		}
		return nil
	})
	assert.NotSame(t, f, replaced)
	assert.Same(t, inner, replaced.Children()[0])
	assert.Equal(t, []uint32{4}, ids(replaced.Children()[1]))
}

func TestExplainAndTelemetry(t *testing.T) {
	f := And(Attribute("color", "en", Constant(bitmap.Of(1, 2))), Constant(bitmap.Of(2)))

	out := Explain(f)
	assert.Contains(t, out, "AND [hash=")
	assert.Contains(t, out, "\n  ATTRIBUTE(color,en)")
	assert.NotContains(t, out, "card=")

	tel := Collect(f)
	assert.Equal(t, 4, tel.Nodes)
	assert.Equal(t, 1, tel.ActualCardinality)
	assert.Equal(t, f.Hash(), tel.Hash)
	assert.True(t, tel.Cacheable)
	assert.Contains(t, Explain(f), "card=1")
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "AND", KindAnd.String())
	assert.Equal(t, "FLATTENED", KindFlattened.String())
	assert.Equal(t, "Kind(200)", Kind(200).String())
	assert.Panics(t, func() { Kind(200).classID() })
}
