package txn

// Reference is a transactional holder of a single value.
//
// Values are published by pointer swap, so T should be treated as
// immutable once stored (copy slices and maps before modifying them).
type Reference[T any] struct {
	base[*T]
}

// ReferenceChanges is the private state of a Reference within one transaction.
type ReferenceChanges[T any] struct {
	layerBase
	value *T
}

// NewReference creates a new Reference holding value.
func NewReference[T any](value T) *Reference[T] {
	r := &Reference[T]{}
	r.init(&value)
	return r
}

// Get returns the value visible to tx.
func (r *Reference[T]) Get(tx *Tx) T {
	if layer, ok := LayerIfExists[*ReferenceChanges[T]](tx, r.id); ok {
		return *layer.value
	}
	return *r.load(tx)
}

// Pointer returns the stored pointer visible to tx. It identifies the
// current value for CompareAndSet.
func (r *Reference[T]) Pointer(tx *Tx) *T {
	if layer, ok := LayerIfExists[*ReferenceChanges[T]](tx, r.id); ok {
		return layer.value
	}
	return r.load(tx)
}

// Set replaces the value.
func (r *Reference[T]) Set(tx *Tx, value T) error {
	if tx == nil {
		_, err := r.write(func(*T) (*T, bool, error) { return &value, true, nil })
		return err
	}
	layer, err := GetOrCreateLayer[*ReferenceChanges[T], *T](tx, r)
	if err != nil {
		return err
	}
	layer.value = &value
	return nil
}

// CompareAndSet replaces the value only if the pointer visible to tx is still
// expected. It reports whether the value was replaced.
func (r *Reference[T]) CompareAndSet(tx *Tx, expected *T, value T) (bool, error) {
	if tx == nil {
		return r.write(func(cur *T) (*T, bool, error) {
			return &value, cur == expected, nil
		})
	}
	layer, err := GetOrCreateLayer[*ReferenceChanges[T], *T](tx, r)
	if err != nil {
		return false, err
	}
	if layer.value != expected {
		return false, nil
	}
	layer.value = &value
	return true, nil
}

// Update replaces the value with fn applied to the value visible to tx.
func (r *Reference[T]) Update(tx *Tx, fn func(T) T) error {
	return r.Set(tx, fn(r.Get(tx)))
}

// CreateLayer implements Producer.
func (r *Reference[T]) CreateLayer(tx *Tx) *ReferenceChanges[T] {
	return &ReferenceChanges[T]{value: r.load(tx)}
}

// CreateCopyWithMergedLayer implements Producer.
func (r *Reference[T]) CreateCopyWithMergedLayer(layer *ReferenceChanges[T], m *Maintainer) (*T, error) {
	if err := layer.checkOwner(m, r.id); err != nil {
		return nil, err
	}
	return layer.value, nil
}

// Publish implements Producer.
func (r *Reference[T]) Publish(value *T, c *Commit) {
	r.publish(value, c)
}

// RemoveLayer implements Producer.
func (r *Reference[T]) RemoveLayer(m *Maintainer) {
	m.remove(r.id)
}
