package txn

import "github.com/benbjohnson/immutable"

// Set is a transactional set of comparable values.
type Set[K comparable] struct {
	base[*immutable.Map[K, struct{}]]
	hasher immutable.Hasher[K]
}

// SetChanges is the private state of a Set within one transaction.
type SetChanges[K comparable] struct {
	layerBase
	current *immutable.Map[K, struct{}]
	added   map[K]struct{}
	removed map[K]struct{}
}

// Modified reports whether the transaction changed the set.
func (c *SetChanges[K]) Modified() bool {
	return len(c.added) > 0 || len(c.removed) > 0
}

// NewSet creates a Set holding values.
func NewSet[K comparable](values ...K) *Set[K] {
	return NewSetWithHasher[K](nil, values...)
}

// NewSetWithHasher creates a Set using a custom hasher.
func NewSetWithHasher[K comparable](hasher immutable.Hasher[K], values ...K) *Set[K] {
	s := &Set[K]{hasher: hasher}
	state := immutable.NewMap[K, struct{}](hasher)
	for _, v := range values {
		state = state.Set(v, struct{}{})
	}
	s.init(state)
	return s
}

func (s *Set[K]) visible(tx *Tx) *immutable.Map[K, struct{}] {
	if layer, ok := LayerIfExists[*SetChanges[K]](tx, s.id); ok {
		return layer.current
	}
	return s.load(tx)
}

// Contains reports whether value is in the set.
func (s *Set[K]) Contains(tx *Tx, value K) bool {
	_, ok := s.visible(tx).Get(value)
	return ok
}

// Len returns the number of values.
func (s *Set[K]) Len(tx *Tx) int {
	return s.visible(tx).Len()
}

// Values returns all values in unspecified order.
func (s *Set[K]) Values(tx *Tx) []K {
	state := s.visible(tx)
	out := make([]K, 0, state.Len())
	it := state.Iterator()
	for !it.Done() {
		k, _, _ := it.Next()
		out = append(out, k)
	}
	return out
}

// Add inserts value. It reports whether the set changed.
func (s *Set[K]) Add(tx *Tx, value K) (bool, error) {
	if tx == nil {
		return s.write(func(cur *immutable.Map[K, struct{}]) (*immutable.Map[K, struct{}], bool, error) {
			if _, ok := cur.Get(value); ok {
				return cur, false, nil
			}
			return cur.Set(value, struct{}{}), true, nil
		})
	}
	layer, err := GetOrCreateLayer[*SetChanges[K], *immutable.Map[K, struct{}]](tx, s)
	if err != nil {
		return false, err
	}
	if _, ok := layer.current.Get(value); ok {
		return false, nil
	}
	layer.current = layer.current.Set(value, struct{}{})
	delete(layer.removed, value)
	layer.added[value] = struct{}{}
	return true, nil
}

// Remove deletes value. It reports whether the set changed.
func (s *Set[K]) Remove(tx *Tx, value K) (bool, error) {
	if tx == nil {
		return s.write(func(cur *immutable.Map[K, struct{}]) (*immutable.Map[K, struct{}], bool, error) {
			if _, ok := cur.Get(value); !ok {
				return cur, false, nil
			}
			return cur.Delete(value), true, nil
		})
	}
	layer, err := GetOrCreateLayer[*SetChanges[K], *immutable.Map[K, struct{}]](tx, s)
	if err != nil {
		return false, err
	}
	if _, ok := layer.current.Get(value); !ok {
		return false, nil
	}
	layer.current = layer.current.Delete(value)
	delete(layer.added, value)
	layer.removed[value] = struct{}{}
	return true, nil
}

// CreateLayer implements Producer.
func (s *Set[K]) CreateLayer(tx *Tx) *SetChanges[K] {
	return &SetChanges[K]{
		current: s.load(tx),
		added:   make(map[K]struct{}),
		removed: make(map[K]struct{}),
	}
}

// CreateCopyWithMergedLayer implements Producer.
func (s *Set[K]) CreateCopyWithMergedLayer(layer *SetChanges[K], m *Maintainer) (*immutable.Map[K, struct{}], error) {
	if err := layer.checkOwner(m, s.id); err != nil {
		return nil, err
	}
	merged := s.state.newest()
	for v := range layer.removed {
		merged = merged.Delete(v)
	}
	for v := range layer.added {
		merged = merged.Set(v, struct{}{})
	}
	return merged, nil
}

// Publish implements Producer.
func (s *Set[K]) Publish(value *immutable.Map[K, struct{}], c *Commit) {
	s.publish(value, c)
}

// RemoveLayer implements Producer.
func (s *Set[K]) RemoveLayer(m *Maintainer) {
	m.remove(s.id)
}
