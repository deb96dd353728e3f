package formula

import (
	"cmp"
	"slices"

	"github.com/hupe1980/bitdb/internal/bitmap"
)

// DefaultSupplierOperationCost is used by FuncSupplier when no cost is set.
const DefaultSupplierOperationCost int64 = 31

// Source is a transactional bitmap read by a formula, such as a view of a
// txn.Bitmap bound to a transaction.
type Source interface {
	ID() uint64
	Version() uint64
	// Cardinality returns the size without counting as a read.
	Cardinality() int
	Bitmap() *bitmap.Bitmap
	// HasPendingChanges reports uncommitted changes visible only to the
	// reader. Such sources are never cached.
	HasPendingChanges() bool
}

// Dependency records the version of a transactional source a result was
// computed from.
type Dependency struct {
	ID      uint64
	Version uint64
}

// BitmapSupplier produces the bitmap of a deferred formula.
type BitmapSupplier interface {
	Get() *bitmap.Bitmap
	Hash() uint64
	OperationCost() int64
	EstimatedCardinality() int
	Dependencies() []Dependency
	Cacheable() bool
}

// SupersetSupplier resolves the super-set of a negation lazily.
type SupersetSupplier func() *Formula

// FuncSupplier is a BitmapSupplier backed by a function.
type FuncSupplier struct {
	// Key identifies the computation. Equal keys must produce equal bitmaps.
	Key uint64
	// Cost is the per-element operation cost. Zero means the default.
	Cost int64
	// Estimate is the expected result cardinality.
	Estimate int
	// Deps lists the transactional sources read by Fn.
	Deps []Dependency
	// NonCacheable excludes the result from caching.
	NonCacheable bool
	Fn           func() *bitmap.Bitmap
}

func (s *FuncSupplier) Get() *bitmap.Bitmap {
	if s.Fn == nil {
		return bitmap.Empty()
	}
	return s.Fn()
}

func (s *FuncSupplier) Hash() uint64 { return s.Key }

func (s *FuncSupplier) OperationCost() int64 {
	if s.Cost <= 0 {
		return DefaultSupplierOperationCost
	}
	return s.Cost
}

func (s *FuncSupplier) EstimatedCardinality() int { return s.Estimate }

func (s *FuncSupplier) Dependencies() []Dependency { return s.Deps }

func (s *FuncSupplier) Cacheable() bool { return !s.NonCacheable }

// mergeDependencies returns the union of lists sorted by id. When an id
// appears more than once the highest version is kept.
func mergeDependencies(lists ...[]Dependency) []Dependency {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	if n == 0 {
		return nil
	}
	out := make([]Dependency, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	slices.SortFunc(out, func(a, b Dependency) int {
		if c := cmp.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return cmp.Compare(b.Version, a.Version)
	})
	return slices.CompactFunc(out, func(a, b Dependency) bool { return a.ID == b.ID })
}
