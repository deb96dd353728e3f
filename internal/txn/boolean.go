package txn

// Boolean is a transactional boolean flag.
type Boolean struct {
	base[bool]
}

// BooleanChanges is the private state of a Boolean within one transaction.
type BooleanChanges struct {
	layerBase
	value bool
}

// NewBoolean creates a new Boolean with the given initial value.
func NewBoolean(value bool) *Boolean {
	b := &Boolean{}
	b.init(value)
	return b
}

// IsSet returns the value visible to tx.
func (b *Boolean) IsSet(tx *Tx) bool {
	if layer, ok := LayerIfExists[*BooleanChanges](tx, b.id); ok {
		return layer.value
	}
	return b.load(tx)
}

// SetToTrue sets the flag.
func (b *Boolean) SetToTrue(tx *Tx) error {
	return b.set(tx, true)
}

// SetToFalse clears the flag.
func (b *Boolean) SetToFalse(tx *Tx) error {
	return b.set(tx, false)
}

func (b *Boolean) set(tx *Tx, value bool) error {
	if tx == nil {
		_, err := b.write(func(bool) (bool, bool, error) { return value, true, nil })
		return err
	}
	layer, err := GetOrCreateLayer[*BooleanChanges, bool](tx, b)
	if err != nil {
		return err
	}
	layer.value = value
	return nil
}

// CreateLayer implements Producer.
func (b *Boolean) CreateLayer(tx *Tx) *BooleanChanges {
	return &BooleanChanges{value: b.load(tx)}
}

// CreateCopyWithMergedLayer implements Producer.
func (b *Boolean) CreateCopyWithMergedLayer(layer *BooleanChanges, m *Maintainer) (bool, error) {
	if err := layer.checkOwner(m, b.id); err != nil {
		return false, err
	}
	return layer.value, nil
}

// Publish implements Producer.
func (b *Boolean) Publish(value bool, c *Commit) {
	b.publish(value, c)
}

// RemoveLayer implements Producer.
func (b *Boolean) RemoveLayer(m *Maintainer) {
	m.remove(b.id)
}
