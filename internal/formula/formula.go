package formula

import (
	"fmt"

	"github.com/hupe1980/bitdb/internal/bitmap"
)

// Formula is an immutable node of a boolean expression over bitmaps.
//
// Results, hashes and cost figures are computed lazily and memoized in
// write-once cells, so a Formula may be read from several goroutines.
// Formulas are built with the constructors and factory functions of this
// package; the zero value is not usable.
type Formula struct {
	kind     Kind
	children []*Formula

	// KindConstant, KindFlattened
	constant *bitmap.Bitmap
	// KindConstant backed by transactional memory
	source Source
	// KindAttribute
	name   string
	locale string
	// KindDeferred
	supplier BitmapSupplier
	// KindFutureNot
	superset SupersetSupplier
	// KindFlattened
	recorded *Recorded

	result    cell[*bitmap.Bitmap]
	hash      cell[uint64]
	ids       cell[[]uint64]
	idHash    cell[uint64]
	deps      cell[[]Dependency]
	estCard   cell[int]
	estCost   cell[int64]
	cost      cell[int64]
	cacheable cell[bool]
}

// Recorded carries what a flattened formula remembers about the subtree it
// replaces.
type Recorded struct {
	Hash         uint64
	Dependencies []Dependency
	Cost         int64
}

var (
	emptyFormula = &Formula{kind: KindEmpty}
	skipFormula  = &Formula{kind: KindSkip}
)

// Empty returns the canonical empty formula.
func Empty() *Formula {
	return emptyFormula
}

// Skip returns the placeholder for an ignored constraint. The factory drops
// it from AND and OR; on its own it computes to the empty bitmap.
func Skip() *Formula {
	return skipFormula
}

// Constant wraps a fixed bitmap. Its hash is derived from the content.
func Constant(b *bitmap.Bitmap) *Formula {
	if b == nil {
		b = bitmap.Empty()
	}
	return &Formula{kind: KindConstant, constant: b}
}

// FromSource wraps a transactional bitmap. Its hash is derived from the
// source id and version, and the source is reported as a dependency.
func FromSource(src Source) *Formula {
	return &Formula{kind: KindConstant, source: src}
}

// Attribute scopes inner to an attribute name and locale.
func Attribute(name, locale string, inner *Formula) *Formula {
	return &Formula{kind: KindAttribute, name: name, locale: locale, children: []*Formula{inner}}
}

// Deferred creates a leaf whose bitmap is produced by s on first compute.
func Deferred(s BitmapSupplier) *Formula {
	return &Formula{kind: KindDeferred, supplier: s}
}

// Flattened creates a surrogate that serves a previously computed result.
// It reports the hash, dependencies and cost of the subtree it replaces.
func Flattened(b *bitmap.Bitmap, rec Recorded) *Formula {
	if b == nil {
		b = bitmap.Empty()
	}
	return &Formula{kind: KindFlattened, constant: b, recorded: &rec}
}

// NewFutureNot creates a negation whose super-set is resolved later. It
// requires exactly one inner formula and a super-set supplier.
func NewFutureNot(superset SupersetSupplier, inners ...*Formula) (*Formula, error) {
	if len(inners) != 1 {
		return nil, &ConstructionError{
			Kind:   KindFutureNot,
			Reason: fmt.Sprintf("expected exactly one inner formula, got %d", len(inners)),
		}
	}
	if inners[0] == nil {
		return nil, &ConstructionError{Kind: KindFutureNot, Reason: "inner formula is nil"}
	}
	if superset == nil {
		return nil, &ConstructionError{Kind: KindFutureNot, Reason: "super-set supplier is nil"}
	}
	return &Formula{kind: KindFutureNot, superset: superset, children: []*Formula{inners[0]}}, nil
}

// Kind returns the node kind.
func (f *Formula) Kind() Kind {
	return f.kind
}

// Children returns the inner formulas in order. The slice must not be
// modified.
func (f *Formula) Children() []*Formula {
	return f.children
}

// Name returns the attribute name of an attribute formula.
func (f *Formula) Name() string {
	return f.name
}

// Locale returns the attribute locale of an attribute formula.
func (f *Formula) Locale() string {
	return f.locale
}

// Source returns the transactional source of a constant formula, if any.
func (f *Formula) Source() Source {
	return f.source
}

// Computed reports whether the result has already been memoized.
func (f *Formula) Computed() bool {
	return f.result.done()
}

// Compute evaluates the formula. The result is memoized and must not be
// modified.
func (f *Formula) Compute() *bitmap.Bitmap {
	return f.result.get(f.compute)
}

func (f *Formula) compute() *bitmap.Bitmap {
	switch f.kind {
	case KindEmpty, KindSkip:
		return bitmap.Empty()
	case KindConstant:
		if f.source != nil {
			return f.source.Bitmap()
		}
		return f.constant
	case KindFlattened:
		return f.constant
	case KindAnd:
		results := make([]*bitmap.Bitmap, 0, len(f.children))
		for _, c := range f.children {
			r := c.Compute()
			if r.IsEmpty() {
				return bitmap.Empty()
			}
			results = append(results, r)
		}
		return bitmap.AndAll(results...)
	case KindOr:
		results := make([]*bitmap.Bitmap, 0, len(f.children))
		for _, c := range f.children {
			results = append(results, c.Compute())
		}
		return bitmap.OrAll(results...)
	case KindNot:
		superset := f.children[1].Compute()
		if superset.IsEmpty() {
			return bitmap.Empty()
		}
		return bitmap.AndNot(superset, f.children[0].Compute())
	case KindFutureNot:
		superset := f.superset()
		if superset == nil {
			return bitmap.Empty()
		}
		return bitmap.AndNot(superset.Compute(), f.children[0].Compute())
	case KindAttribute:
		return f.children[0].Compute()
	case KindDeferred:
		r := f.supplier.Get()
		if r == nil {
			return bitmap.Empty()
		}
		return r
	default:
		panic(fmt.Sprintf("formula: unknown kind %d", uint8(f.kind)))
	}
}

// WithChildren returns a copy of f with its inner formulas replaced. The
// copy shares no memoized state with f.
func (f *Formula) WithChildren(children ...*Formula) *Formula {
	return &Formula{
		kind:     f.kind,
		children: children,
		constant: f.constant,
		source:   f.source,
		name:     f.name,
		locale:   f.locale,
		supplier: f.supplier,
		superset: f.superset,
		recorded: f.recorded,
	}
}

// String renders the formula on one line.
func (f *Formula) String() string {
	switch f.kind {
	case KindEmpty, KindSkip:
		return f.kind.String()
	case KindConstant:
		if f.source != nil {
			return fmt.Sprintf("CONSTANT(source=%d@%d)", f.source.ID(), f.source.Version())
		}
		return fmt.Sprintf("CONSTANT(%s)", f.constant)
	case KindFlattened:
		return fmt.Sprintf("FLATTENED(%016x)", f.recorded.Hash)
	case KindAttribute:
		return fmt.Sprintf("ATTRIBUTE(%s,%s,%s)", f.name, f.locale, f.children[0])
	case KindDeferred:
		return fmt.Sprintf("DEFERRED(%016x)", f.supplier.Hash())
	case KindAnd, KindOr, KindNot, KindFutureNot:
		s := f.kind.String() + "("
		for i, c := range f.children {
			if i > 0 {
				s += ","
			}
			s += c.String()
		}
		return s + ")"
	default:
		panic(fmt.Sprintf("formula: unknown kind %d", uint8(f.kind)))
	}
}
