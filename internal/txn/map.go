package txn

import "github.com/benbjohnson/immutable"

// Map is a transactional map backed by a persistent (structurally shared)
// hash map. A transaction reads its own version of the map and records the
// keys it wrote or removed; commit replays those onto the shared map visible
// at commit time, so transactions touching disjoint keys compose.
//
// Keys must be supported by the default immutable hasher (integers, strings,
// byte slices) unless a hasher is supplied with NewMapWithHasher.
type Map[K comparable, V any] struct {
	base[*immutable.Map[K, V]]
	hasher immutable.Hasher[K]
}

// MapChanges is the private state of a Map within one transaction.
type MapChanges[K comparable, V any] struct {
	layerBase
	current *immutable.Map[K, V]
	written map[K]V
	removed map[K]struct{}
	cleared bool
}

// Modified reports whether the transaction changed the map.
func (c *MapChanges[K, V]) Modified() bool {
	return c.cleared || len(c.written) > 0 || len(c.removed) > 0
}

func (c *MapChanges[K, V]) put(key K, value V) {
	c.current = c.current.Set(key, value)
	c.written[key] = value
	delete(c.removed, key)
}

func (c *MapChanges[K, V]) remove(key K) {
	c.current = c.current.Delete(key)
	delete(c.written, key)
	c.removed[key] = struct{}{}
}

// NewMap creates an empty Map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return NewMapWithHasher[K, V](nil)
}

// NewMapWithHasher creates an empty Map using a custom key hasher.
func NewMapWithHasher[K comparable, V any](hasher immutable.Hasher[K]) *Map[K, V] {
	m := &Map[K, V]{hasher: hasher}
	m.init(immutable.NewMap[K, V](hasher))
	return m
}

func (m *Map[K, V]) visible(tx *Tx) *immutable.Map[K, V] {
	if layer, ok := LayerIfExists[*MapChanges[K, V]](tx, m.id); ok {
		return layer.current
	}
	return m.load(tx)
}

// HasPendingChanges reports whether tx holds uncommitted changes of the map.
func (m *Map[K, V]) HasPendingChanges(tx *Tx) bool {
	layer, ok := LayerIfExists[*MapChanges[K, V]](tx, m.id)
	return ok && layer.Modified()
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(tx *Tx, key K) (V, bool) {
	return m.visible(tx).Get(key)
}

// Contains reports whether key is present.
func (m *Map[K, V]) Contains(tx *Tx, key K) bool {
	_, ok := m.visible(tx).Get(key)
	return ok
}

// Len returns the number of entries.
func (m *Map[K, V]) Len(tx *Tx) int {
	return m.visible(tx).Len()
}

// Keys returns all keys in iteration order of the underlying map.
func (m *Map[K, V]) Keys(tx *Tx) []K {
	state := m.visible(tx)
	keys := make([]K, 0, state.Len())
	it := state.Iterator()
	for !it.Done() {
		k, _, _ := it.Next()
		keys = append(keys, k)
	}
	return keys
}

// Range calls fn for each entry until fn returns false.
func (m *Map[K, V]) Range(tx *Tx, fn func(key K, value V) bool) {
	it := m.visible(tx).Iterator()
	for !it.Done() {
		k, v, _ := it.Next()
		if !fn(k, v) {
			return
		}
	}
}

// Put stores value under key.
func (m *Map[K, V]) Put(tx *Tx, key K, value V) error {
	if tx == nil {
		_, err := m.write(func(cur *immutable.Map[K, V]) (*immutable.Map[K, V], bool, error) {
			return cur.Set(key, value), true, nil
		})
		return err
	}
	layer, err := GetOrCreateLayer[*MapChanges[K, V], *immutable.Map[K, V]](tx, m)
	if err != nil {
		return err
	}
	layer.put(key, value)
	return nil
}

// Remove deletes key. Removing a missing key is a no-op.
func (m *Map[K, V]) Remove(tx *Tx, key K) error {
	if tx == nil {
		_, err := m.write(func(cur *immutable.Map[K, V]) (*immutable.Map[K, V], bool, error) {
			return cur.Delete(key), true, nil
		})
		return err
	}
	layer, err := GetOrCreateLayer[*MapChanges[K, V], *immutable.Map[K, V]](tx, m)
	if err != nil {
		return err
	}
	layer.remove(key)
	return nil
}

// Clear removes every entry.
func (m *Map[K, V]) Clear(tx *Tx) error {
	if tx == nil {
		_, err := m.write(func(*immutable.Map[K, V]) (*immutable.Map[K, V], bool, error) {
			return immutable.NewMap[K, V](m.hasher), true, nil
		})
		return err
	}
	layer, err := GetOrCreateLayer[*MapChanges[K, V], *immutable.Map[K, V]](tx, m)
	if err != nil {
		return err
	}
	layer.current = immutable.NewMap[K, V](m.hasher)
	layer.written = make(map[K]V)
	layer.removed = make(map[K]struct{})
	layer.cleared = true
	return nil
}

// CreateLayer implements Producer.
func (m *Map[K, V]) CreateLayer(tx *Tx) *MapChanges[K, V] {
	return &MapChanges[K, V]{
		current: m.load(tx),
		written: make(map[K]V),
		removed: make(map[K]struct{}),
	}
}

// CreateCopyWithMergedLayer implements Producer.
func (m *Map[K, V]) CreateCopyWithMergedLayer(layer *MapChanges[K, V], mt *Maintainer) (*immutable.Map[K, V], error) {
	if err := layer.checkOwner(mt, m.id); err != nil {
		return nil, err
	}

	merged := m.state.newest()
	if !layer.Modified() {
		return merged, nil
	}
	if layer.cleared {
		merged = immutable.NewMap[K, V](m.hasher)
	}
	for key := range layer.removed {
		merged = merged.Delete(key)
	}
	for key, value := range layer.written {
		merged = merged.Set(key, value)
	}
	return merged, nil
}

// Publish implements Producer.
func (m *Map[K, V]) Publish(value *immutable.Map[K, V], c *Commit) {
	m.publish(value, c)
}

// RemoveLayer implements Producer.
func (m *Map[K, V]) RemoveLayer(mt *Maintainer) {
	mt.remove(m.id)
}
