// Package sorter orders and paginates the primary keys of a query result.
//
// A Sorter places the keys it knows how to order into the result page and
// leaves the rest in the context for the next sorter of the chain. Keys are
// consumed exactly once: each one is either skipped (it falls before the
// requested window), placed, or left for a later sorter.
package sorter

import (
	"slices"

	"github.com/hupe1980/bitdb/internal/bitmap"
)

// Context threads the sorting state through a chain of sorters.
type Context struct {
	// NonSorted holds the keys no sorter has consumed yet.
	NonSorted *bitmap.Bitmap
	// Start is the number of ordered keys still to skip before the page.
	Start int
	// End is Start plus the free capacity of the page.
	End int
	// Peak is the next free slot of the result page.
	Peak int
	// Skipped counts keys consumed before the page.
	Skipped int
	// BlockKey identifies the atomic block being sorted, if any.
	BlockKey string
}

// Done reports whether sorting can stop: the page is full or no keys remain.
func (c Context) Done(result []uint32) bool {
	return c.Peak >= len(result) || c.End <= c.Start || c.NonSorted.IsEmpty()
}

// advance returns the context after a sorter skipped and placed keys.
func (c Context) advance(remaining *bitmap.Bitmap, read, skipped int) Context {
	return Context{
		NonSorted: remaining,
		Start:     c.Start - skipped,
		End:       c.End - skipped - read,
		Peak:      c.Peak + read,
		Skipped:   c.Skipped + skipped,
		BlockKey:  c.BlockKey,
	}
}

// Sorter orders a subset of the unsorted keys into result.
//
// result[ctx.Peak:] is the free part of the page. skipped, if not nil, is
// called for every key consumed before the page.
type Sorter interface {
	SortAndSlice(ctx Context, result []uint32, skipped func(id uint32)) Context
}

// SorterFunc adapts a function to the Sorter interface.
type SorterFunc func(ctx Context, result []uint32, skipped func(id uint32)) Context

func (f SorterFunc) SortAndSlice(ctx Context, result []uint32, skipped func(id uint32)) Context {
	return f(ctx, result, skipped)
}

// SortAndSlice orders keys with sorters, falling back to ascending primary
// key order, and returns the keys at positions [start, end) along with the
// number of keys skipped before start.
func SortAndSlice(keys *bitmap.Bitmap, start, end int, sorters ...Sorter) ([]uint32, int) {
	start = max(start, 0)
	end = min(end, keys.Cardinality())
	if end <= start {
		return []uint32{}, min(start, keys.Cardinality())
	}

	result := make([]uint32, end-start)
	ctx := Context{NonSorted: keys, Start: start, End: end}
	ctx = Chain(append(slices.Clip(sorters), Natural())...).SortAndSlice(ctx, result, nil)
	return result[:ctx.Peak], ctx.Skipped
}

// place consumes ids in the given order: it skips until ctx.Start is
// reached, then fills result. It returns the context after consumption.
// Ids not in ctx.NonSorted are ignored.
func place(ctx Context, ordered func(yield func(uint32) bool), result []uint32, skipped func(uint32)) Context {
	if ctx.Done(result) {
		return ctx
	}

	toSkip := max(ctx.Start, 0)
	room := min(ctx.End-ctx.Start, len(result)-ctx.Peak)
	consumed := bitmap.New()
	var read, skip int

	ordered(func(id uint32) bool {
		if !ctx.NonSorted.Contains(id) || consumed.Contains(id) {
			return true
		}
		consumed.Add(id)
		if skip < toSkip {
			skip++
			if skipped != nil {
				skipped(id)
			}
			return true
		}
		result[ctx.Peak+read] = id
		read++
		return read < room
	})

	return ctx.advance(bitmap.AndNot(ctx.NonSorted, consumed), read, skip)
}
