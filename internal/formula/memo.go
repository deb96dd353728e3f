package formula

import "sync/atomic"

// cell is a write-once memo slot.
//
// Concurrent first calls may all run fn; the first stored value wins and
// every caller returns it. fn must therefore be idempotent.
type cell[T any] struct {
	p atomic.Pointer[T]
}

func (c *cell[T]) get(fn func() T) T {
	if v := c.p.Load(); v != nil {
		return *v
	}
	v := fn()
	c.p.CompareAndSwap(nil, &v)
	return *c.p.Load()
}

func (c *cell[T]) done() bool {
	return c.p.Load() != nil
}
