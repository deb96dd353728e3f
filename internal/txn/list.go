package txn

import (
	"fmt"

	"github.com/benbjohnson/immutable"
)

// List is a transactional ordered list.
//
// Positions are not stable across transactions, so commit replaces the
// shared list with the transaction's version (last committer wins).
type List[T any] struct {
	base[*immutable.List[T]]
}

// ListChanges is the private state of a List within one transaction.
type ListChanges[T any] struct {
	layerBase
	origin  *immutable.List[T]
	current *immutable.List[T]
}

// Modified reports whether the transaction changed the list.
func (c *ListChanges[T]) Modified() bool {
	return c.current != c.origin
}

// NewList creates a List holding values.
func NewList[T any](values ...T) *List[T] {
	l := &List[T]{}
	l.init(immutable.NewList[T](values...))
	return l
}

func (l *List[T]) visible(tx *Tx) *immutable.List[T] {
	if layer, ok := LayerIfExists[*ListChanges[T]](tx, l.id); ok {
		return layer.current
	}
	return l.load(tx)
}

// Len returns the number of elements.
func (l *List[T]) Len(tx *Tx) int {
	return l.visible(tx).Len()
}

// Get returns the element at index i.
func (l *List[T]) Get(tx *Tx, i int) (T, bool) {
	state := l.visible(tx)
	if i < 0 || i >= state.Len() {
		var zero T
		return zero, false
	}
	return state.Get(i), true
}

// Values returns a copy of all elements in order.
func (l *List[T]) Values(tx *Tx) []T {
	state := l.visible(tx)
	out := make([]T, 0, state.Len())
	itr := state.Iterator()
	for !itr.Done() {
		_, v := itr.Next()
		out = append(out, v)
	}
	return out
}

// Append adds value at the end of the list.
func (l *List[T]) Append(tx *Tx, value T) error {
	return l.mutate(tx, func(state *immutable.List[T]) (*immutable.List[T], error) {
		return state.Append(value), nil
	})
}

// Set replaces the element at index i.
func (l *List[T]) Set(tx *Tx, i int, value T) error {
	return l.mutate(tx, func(state *immutable.List[T]) (*immutable.List[T], error) {
		if i < 0 || i >= state.Len() {
			return nil, fmt.Errorf("list index %d out of range [0,%d)", i, state.Len())
		}
		return state.Set(i, value), nil
	})
}

// Remove deletes the element at index i, shifting later elements left.
func (l *List[T]) Remove(tx *Tx, i int) error {
	return l.mutate(tx, func(state *immutable.List[T]) (*immutable.List[T], error) {
		n := state.Len()
		if i < 0 || i >= n {
			return nil, fmt.Errorf("list index %d out of range [0,%d)", i, n)
		}
		if i == n-1 {
			return state.Slice(0, i), nil
		}
		out := state.Slice(0, i)
		for j := i + 1; j < n; j++ {
			out = out.Append(state.Get(j))
		}
		return out, nil
	})
}

func (l *List[T]) mutate(tx *Tx, fn func(*immutable.List[T]) (*immutable.List[T], error)) error {
	if tx == nil {
		_, err := l.write(func(cur *immutable.List[T]) (*immutable.List[T], bool, error) {
			next, err := fn(cur)
			return next, err == nil, err
		})
		return err
	}
	layer, err := GetOrCreateLayer[*ListChanges[T], *immutable.List[T]](tx, l)
	if err != nil {
		return err
	}
	next, err := fn(layer.current)
	if err != nil {
		return err
	}
	layer.current = next
	return nil
}

// CreateLayer implements Producer.
func (l *List[T]) CreateLayer(tx *Tx) *ListChanges[T] {
	state := l.load(tx)
	return &ListChanges[T]{origin: state, current: state}
}

// CreateCopyWithMergedLayer implements Producer.
func (l *List[T]) CreateCopyWithMergedLayer(layer *ListChanges[T], m *Maintainer) (*immutable.List[T], error) {
	if err := layer.checkOwner(m, l.id); err != nil {
		return nil, err
	}
	if !layer.Modified() {
		return l.state.newest(), nil
	}
	return layer.current, nil
}

// Publish implements Producer.
func (l *List[T]) Publish(value *immutable.List[T], c *Commit) {
	l.publish(value, c)
}

// RemoveLayer implements Producer.
func (l *List[T]) RemoveLayer(m *Maintainer) {
	m.remove(l.id)
}
