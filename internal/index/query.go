package index

import (
	"github.com/hupe1980/bitdb/internal/formula"
	"github.com/hupe1980/bitdb/internal/sorter"
	"github.com/hupe1980/bitdb/internal/txn"
)

// All returns the formula of every record in the universe.
func (e *EntityIndex) All(tx *txn.Tx) *formula.Formula {
	return formula.FromSource(e.universe.View(tx))
}

// Universe returns a super-set supplier resolving to All, for negations
// whose super-set is not known when they are built.
func (e *EntityIndex) Universe(tx *txn.Tx) formula.SupersetSupplier {
	return func() *formula.Formula { return e.All(tx) }
}

// AttributeEquals returns the formula of records whose key attribute holds
// value. An unknown attribute or value yields Empty.
func (e *EntityIndex) AttributeEquals(tx *txn.Tx, key AttributeKey, value string) *formula.Formula {
	fi, ok := e.filters.Get(tx, key)
	if !ok {
		return formula.Empty()
	}
	return scoped(key, fi.equals(tx, value))
}

// AttributeIn returns the formula of records whose key attribute holds any
// of values.
func (e *EntityIndex) AttributeIn(tx *txn.Tx, key AttributeKey, values ...string) *formula.Formula {
	fi, ok := e.filters.Get(tx, key)
	if !ok {
		return formula.Empty()
	}
	children := make([]*formula.Formula, 0, len(values))
	for _, v := range values {
		children = append(children, fi.equals(tx, v))
	}
	return scoped(key, formula.Or(children...))
}

// scoped wraps inner in an attribute node unless it is Empty, which stays
// bare so AND can short-circuit on it.
func scoped(key AttributeKey, inner *formula.Formula) *formula.Formula {
	if inner.Kind() == formula.KindEmpty {
		return inner
	}
	return formula.Attribute(key.Name, key.Locale, inner)
}

// AttributeRange returns the formula of records whose key attribute holds a
// value in [from, to] under the index comparator. An empty bound is open.
// The value bitmaps are read only when the formula is computed.
func (e *EntityIndex) AttributeRange(tx *txn.Tx, key AttributeKey, from, to string) *formula.Formula {
	fi, ok := e.filters.Get(tx, key)
	if !ok {
		return formula.Empty()
	}
	return fi.between(tx, from, to)
}

// AttributeNot returns a negation of inner against the universe that is
// resolved when it meets other constraints in an AND.
func (e *EntityIndex) AttributeNot(tx *txn.Tx, inner *formula.Formula) (*formula.Formula, error) {
	return formula.NewFutureNot(e.Universe(tx), inner)
}

// Sorter orders records by the values of key. Records without a value are
// left to the next sorter.
func (e *EntityIndex) Sorter(tx *txn.Tx, key AttributeKey, order sorter.Order) sorter.Sorter {
	return sorter.PreSorted(key.String(), sorter.ProviderFunc(func() []uint32 {
		fi, ok := e.filters.Get(tx, key)
		if !ok {
			return nil
		}
		return fi.SortedRecords(tx)
	}), order)
}

// ReferenceSorter orders records block by block along the reference name.
// inner supplies the sorter within the block of each target; if nil each
// block is sorted by primary key. Records outside any block are left to the
// next sorter.
func (e *EntityIndex) ReferenceSorter(tx *txn.Tx, name string, inner func(target string) sorter.Sorter) sorter.Sorter {
	ri, ok := e.references.Get(tx, name)
	if !ok {
		return sorter.Sequential()
	}
	return sorter.Sequential(ri.blocks(tx, inner)...)
}
