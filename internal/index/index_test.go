package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bitdb/internal/formula"
	"github.com/hupe1980/bitdb/internal/sorter"
	"github.com/hupe1980/bitdb/internal/txn"
)

var (
	color = AttributeKey{Name: "color"}
	price = AttributeKey{Name: "price"}
)

// newFixture indexes records 1..6:
//
//	id  color  price  brand
//	1   red    5      a
//	2   blue   20     a
//	3   red    100    b
//	4   green  9
//	5   blue   abc    b
//	6
func newFixture(t *testing.T) (*txn.Manager, *EntityIndex) {
	t.Helper()
	mgr := txn.NewManager(txn.Config{})
	idx := New(Config{})

	tx := mgr.Begin()
	defer tx.Rollback()

	require.NoError(t, idx.Insert(tx, 1, 2, 3, 4, 5, 6))
	for id, c := range map[uint32]string{1: "red", 2: "blue", 3: "red", 4: "green", 5: "blue"} {
		require.NoError(t, idx.SetAttribute(tx, color, id, c))
	}
	for id, p := range map[uint32]string{1: "5", 2: "20", 3: "100", 4: "9", 5: "abc"} {
		require.NoError(t, idx.SetAttribute(tx, price, id, p))
	}
	// Insertion order defines block order: b before a.
	require.NoError(t, idx.AddReference(tx, "brand", "b", 3))
	require.NoError(t, idx.AddReference(tx, "brand", "a", 1))
	require.NoError(t, idx.AddReference(tx, "brand", "b", 5))
	require.NoError(t, idx.AddReference(tx, "brand", "a", 2))
	require.NoError(t, tx.Commit())
	return mgr, idx
}

func ids(f *formula.Formula) []uint32 {
	return f.Compute().ToArray()
}

func TestEntityIndex_Filters(t *testing.T) {
	_, idx := newFixture(t)

	assert.Equal(t, 6, idx.Size(nil))
	assert.Equal(t, []uint32{1, 2, 3, 4, 5, 6}, ids(idx.All(nil)))
	assert.Equal(t, []uint32{1, 3}, ids(idx.AttributeEquals(nil, color, "red")))
	assert.Equal(t, []uint32{1, 3, 4}, ids(idx.AttributeIn(nil, color, "red", "green", "purple")))
	assert.Equal(t, []uint32{2, 3, 4}, ids(idx.AttributeRange(nil, price, "9", "100")))
	assert.Equal(t, []uint32{1, 4}, ids(idx.AttributeRange(nil, price, "", "10")))
	assert.Equal(t, []uint32{5}, ids(idx.AttributeRange(nil, price, "abc", "")))

	assert.Equal(t, formula.KindEmpty, idx.AttributeEquals(nil, color, "purple").Kind())
	assert.Equal(t, formula.KindEmpty, idx.AttributeEquals(nil, AttributeKey{Name: "size"}, "xl").Kind())
	assert.Equal(t, formula.KindEmpty, idx.AttributeRange(nil, price, "200", "300").Kind())

	f := idx.AttributeEquals(nil, color, "red")
	require.Equal(t, formula.KindAttribute, f.Kind())
	assert.Equal(t, "color", f.Name())

	fi, ok := idx.Filter(nil, price)
	require.True(t, ok)
	assert.Equal(t, []string{"5", "9", "20", "100", "abc"}, fi.Values(nil))
	assert.Equal(t, []AttributeKey{color, price}, idx.Attributes(nil))
}

func TestEntityIndex_Negation(t *testing.T) {
	_, idx := newFixture(t)

	notRed, err := idx.AttributeNot(nil, idx.AttributeEquals(nil, color, "red"))
	require.NoError(t, err)

	assert.Equal(t, []uint32{2, 4, 5, 6}, ids(notRed))
	assert.Equal(t, []uint32{2, 5}, ids(formula.And(idx.AttributeEquals(nil, color, "blue"), notRed)))

	_, err = idx.AttributeNot(nil, nil)
	assert.ErrorIs(t, err, formula.ErrInvalidFormulaConstruction)
}

func TestEntityIndex_Isolation(t *testing.T) {
	mgr, idx := newFixture(t)

	tx := mgr.Begin()
	defer tx.Rollback()
	require.NoError(t, idx.SetAttribute(tx, color, 6, "red"))
	require.NoError(t, idx.Remove(tx, 1))

	assert.Equal(t, []uint32{3, 6}, ids(idx.AttributeEquals(tx, color, "red")))
	assert.Equal(t, []uint32{1, 3}, ids(idx.AttributeEquals(nil, color, "red")))
	assert.False(t, idx.Contains(tx, 1))
	assert.True(t, idx.Contains(nil, 1))
	assert.False(t, idx.AttributeEquals(tx, color, "red").Cacheable())

	require.NoError(t, tx.Commit())

	assert.Equal(t, []uint32{3, 6}, ids(idx.AttributeEquals(nil, color, "red")))
	assert.Equal(t, []uint32{2, 3, 4, 5, 6}, ids(idx.All(nil)))
	assert.Equal(t, []uint32{2, 4}, ids(idx.AttributeRange(nil, price, "", "50")))

	ri, ok := idx.Reference(nil, "brand")
	require.True(t, ok)
	assert.Equal(t, []uint32{2}, ri.Members(nil, "a").ToArray())
}

func TestEntityIndex_RemoveEmptiesValuesAndBlocks(t *testing.T) {
	_, idx := newFixture(t)

	require.NoError(t, idx.RemoveAttribute(nil, color, 4, "green"))
	fi, _ := idx.Filter(nil, color)
	assert.Equal(t, []string{"blue", "red"}, fi.Values(nil))
	assert.True(t, fi.Records(nil, "green").IsEmpty())

	require.NoError(t, idx.RemoveReference(nil, "brand", "b", 3))
	require.NoError(t, idx.RemoveReference(nil, "brand", "b", 5))
	ri, _ := idx.Reference(nil, "brand")
	assert.Equal(t, []string{"a"}, ri.Targets(nil))
}

func TestEntityIndex_Errors(t *testing.T) {
	_, idx := newFixture(t)

	assert.ErrorIs(t, idx.SetAttribute(nil, color, 42, "red"), ErrUnknownRecord)
	assert.ErrorIs(t, idx.AddReference(nil, "brand", "a", 42), ErrUnknownRecord)
	assert.ErrorIs(t, idx.Remove(nil, 42), ErrUnknownRecord)
	assert.ErrorIs(t, idx.RemoveAttribute(nil, AttributeKey{Name: "size"}, 1, "xl"), ErrUnknownAttribute)
	assert.ErrorIs(t, idx.RemoveReference(nil, "maker", "a", 1), ErrUnknownAttribute)
}

func TestEntityIndex_RangeDependencies(t *testing.T) {
	mgr, idx := newFixture(t)

	before := idx.AttributeRange(nil, price, "9", "100")
	require.True(t, before.Cacheable())

	tx := mgr.Begin()
	defer tx.Rollback()
	require.NoError(t, idx.SetAttribute(tx, price, 6, "50"))
	pending := idx.AttributeRange(tx, price, "9", "100")
	assert.False(t, pending.Cacheable())
	assert.Equal(t, []uint32{2, 3, 4, 6}, ids(pending))
	require.NoError(t, tx.Commit())

	after := idx.AttributeRange(nil, price, "9", "100")
	assert.True(t, after.Cacheable())
	assert.Equal(t, before.Hash(), after.Hash())
	assert.NotEqual(t, before.Dependencies(), after.Dependencies())
	assert.Equal(t, []uint32{2, 3, 4, 6}, ids(after))
}

func TestEntityIndex_Sources(t *testing.T) {
	_, idx := newFixture(t)

	sources := idx.Sources(nil)
	for _, f := range []*formula.Formula{
		idx.All(nil),
		idx.AttributeEquals(nil, color, "red"),
		idx.AttributeRange(nil, price, "9", "100"),
	} {
		for _, d := range f.Dependencies() {
			assert.Contains(t, sources, d.ID)
		}
	}
	brand, ok := idx.Reference(nil, "brand")
	require.True(t, ok)
	assert.Subset(t, sources, []uint64{idx.universe.ID(), brand.members.ID()})
}

func TestEntityIndex_Sorter(t *testing.T) {
	_, idx := newFixture(t)
	all := idx.All(nil).Compute()

	page, skipped := sorter.SortAndSlice(all, 0, 6, idx.Sorter(nil, price, sorter.Ascending))
	assert.Equal(t, []uint32{1, 4, 2, 3, 5, 6}, page)
	assert.Zero(t, skipped)

	page, _ = sorter.SortAndSlice(all, 0, 6, idx.Sorter(nil, price, sorter.Descending))
	assert.Equal(t, []uint32{5, 3, 2, 4, 1, 6}, page)

	page, skipped = sorter.SortAndSlice(all, 2, 4, idx.Sorter(nil, price, sorter.Ascending))
	assert.Equal(t, []uint32{2, 3}, page)
	assert.Equal(t, 2, skipped)

	page, _ = sorter.SortAndSlice(all, 0, 6, idx.Sorter(nil, AttributeKey{Name: "size"}, sorter.Ascending))
	assert.Equal(t, []uint32{1, 2, 3, 4, 5, 6}, page)
}

func TestEntityIndex_ReferenceSorter(t *testing.T) {
	_, idx := newFixture(t)
	all := idx.All(nil).Compute()

	t.Run("natural within blocks", func(t *testing.T) {
		page, _ := sorter.SortAndSlice(all, 0, 6, idx.ReferenceSorter(nil, "brand", nil))
		assert.Equal(t, []uint32{3, 5, 1, 2, 4, 6}, page)
	})

	t.Run("inner sorter", func(t *testing.T) {
		inner := func(string) sorter.Sorter { return idx.Sorter(nil, price, sorter.Descending) }
		page, _ := sorter.SortAndSlice(all, 0, 6, idx.ReferenceSorter(nil, "brand", inner))
		assert.Equal(t, []uint32{5, 3, 2, 1, 4, 6}, page)
	})

	t.Run("unknown reference", func(t *testing.T) {
		page, _ := sorter.SortAndSlice(all, 0, 6, idx.ReferenceSorter(nil, "maker", nil))
		assert.Equal(t, []uint32{1, 2, 3, 4, 5, 6}, page)
	})
}

func TestEntityIndex_LocalesAndDirty(t *testing.T) {
	mgr, idx := newFixture(t)
	assert.True(t, idx.IsDirty(nil))
	require.NoError(t, idx.MarkClean(nil))
	assert.False(t, idx.IsDirty(nil))

	tx := mgr.Begin()
	defer tx.Rollback()
	require.NoError(t, idx.SetAttribute(tx, AttributeKey{Name: "name", Locale: "en"}, 1, "chair"))
	require.NoError(t, idx.SetAttribute(tx, AttributeKey{Name: "name", Locale: "de"}, 1, "Stuhl"))
	assert.True(t, idx.IsDirty(tx))
	assert.False(t, idx.IsDirty(nil))
	assert.Empty(t, idx.Locales(nil))
	require.NoError(t, tx.Commit())

	assert.Equal(t, []string{"de", "en"}, idx.Locales(nil))
	assert.True(t, idx.IsDirty(nil))
	assert.Equal(t, []uint32{1}, ids(idx.AttributeEquals(nil, AttributeKey{Name: "name", Locale: "de"}, "Stuhl")))
	assert.Equal(t, formula.KindEmpty, idx.AttributeEquals(nil, AttributeKey{Name: "name", Locale: "de"}, "chair").Kind())
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"9", "10", -1},
		{"10", "9", 1},
		{"1.5", "1.50", -1},
		{"2", "2", 0},
		{"100", "abc", -1},
		{"abc", "100", 1},
		{"abc", "abd", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareValues(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestAttributeKey_Hasher(t *testing.T) {
	h := attributeKeyHasher{}
	a := AttributeKey{Name: "ab", Locale: "c"}
	b := AttributeKey{Name: "a", Locale: "bc"}

	assert.NotEqual(t, h.Hash(a), h.Hash(b))
	assert.True(t, h.Equal(a, AttributeKey{Name: "ab", Locale: "c"}))
	assert.False(t, h.Equal(a, b))
	assert.Equal(t, "ab:c", a.String())
	assert.Equal(t, "color", color.String())
}
