package sorter

import (
	"github.com/hupe1980/bitdb/internal/bitmap"
)

// Order is the direction of a pre-sorted sorter.
type Order uint8

const (
	Ascending Order = iota
	Descending
)

// Provider supplies primary keys in a pre-computed order, such as the
// ascending values of a sort index.
type Provider interface {
	SortedRecords() []uint32
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func() []uint32

func (f ProviderFunc) SortedRecords() []uint32 { return f() }

type preSorted struct {
	name     string
	provider Provider
	order    Order
}

// PreSorted places unsorted keys in the order given by provider. Keys the
// provider does not know are left for the next sorter.
func PreSorted(name string, provider Provider, order Order) Sorter {
	return &preSorted{name: name, provider: provider, order: order}
}

func (s *preSorted) SortAndSlice(ctx Context, result []uint32, skipped func(uint32)) Context {
	records := s.provider.SortedRecords()
	return place(ctx, func(yield func(uint32) bool) {
		if s.order == Descending {
			for i := len(records) - 1; i >= 0; i-- {
				if !yield(records[i]) {
					return
				}
			}
			return
		}
		for _, id := range records {
			if !yield(id) {
				return
			}
		}
	}, result, skipped)
}

func (s *preSorted) String() string {
	if s.order == Descending {
		return s.name + " DESC"
	}
	return s.name + " ASC"
}

type natural struct{}

// Natural places every unsorted key in ascending primary key order.
func Natural() Sorter {
	return natural{}
}

func (natural) SortAndSlice(ctx Context, result []uint32, skipped func(uint32)) Context {
	keys := ctx.NonSorted
	return place(ctx, func(yield func(uint32) bool) {
		keys.ForEach(yield)
	}, result, skipped)
}

type chain []Sorter

// Chain applies sorters in priority order. Each sorter only sees the keys
// the previous ones did not consume. Nil sorters are ignored.
func Chain(sorters ...Sorter) Sorter {
	out := make(chain, 0, len(sorters))
	for _, s := range sorters {
		if s == nil {
			continue
		}
		if c, ok := s.(chain); ok {
			out = append(out, c...)
			continue
		}
		out = append(out, s)
	}
	return out
}

func (c chain) SortAndSlice(ctx Context, result []uint32, skipped func(uint32)) Context {
	for _, s := range c {
		if ctx.Done(result) {
			break
		}
		ctx = s.SortAndSlice(ctx, result, skipped)
	}
	return ctx
}

// Block is an atomic partition of the keys with its own sorter chain.
type Block struct {
	Key     string
	Members *bitmap.Bitmap
	Sorter  Sorter
}

type sequential []Block

// Sequential sorts the unsorted keys block by block. A key placed or skipped
// by an earlier block is never reconsidered by a later one, even if it is a
// member of several blocks. Keys a block's sorter leaves unsorted stay
// available to later blocks and sorters.
func Sequential(blocks ...Block) Sorter {
	return sequential(blocks)
}

func (s sequential) SortAndSlice(ctx Context, result []uint32, skipped func(uint32)) Context {
	outerKey := ctx.BlockKey
	for _, b := range s {
		if ctx.Done(result) {
			break
		}
		keys := bitmap.And(ctx.NonSorted, b.Members)
		if keys.IsEmpty() || b.Sorter == nil {
			continue
		}

		before := ctx.NonSorted
		sub := ctx
		sub.NonSorted = keys
		sub.BlockKey = b.Key
		out := b.Sorter.SortAndSlice(sub, result, skipped)

		consumed := bitmap.AndNot(keys, out.NonSorted)
		ctx = out
		ctx.NonSorted = bitmap.AndNot(before, consumed)
		ctx.BlockKey = outerKey
	}
	return ctx
}
