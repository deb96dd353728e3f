package txn

import (
	"sync/atomic"

	"github.com/hupe1980/bitdb/internal/bitmap"
)

// Bitmap is a transactional set of primary keys.
//
// A published bitmap is never mutated: writes outside a transaction swap in
// a modified copy, and transactions keep insertion and removal diffs that
// are applied to the newest shared bitmap at commit.
type Bitmap struct {
	base[*bitmap.Bitmap]
	reads atomic.Uint64
}

// BitmapChanges is the private state of a Bitmap within one transaction.
type BitmapChanges struct {
	layerBase
	origin     *bitmap.Bitmap
	insertions *bitmap.Bitmap
	removals   *bitmap.Bitmap
	merged     *bitmap.Bitmap
}

// Modified reports whether the transaction changed the bitmap.
func (c *BitmapChanges) Modified() bool {
	return !c.insertions.IsEmpty() || !c.removals.IsEmpty()
}

// mergedWith applies the diff to b without modifying it. The result never
// aliases the diff bitmaps, which keep changing.
func (c *BitmapChanges) mergedWith(b *bitmap.Bitmap) *bitmap.Bitmap {
	out := b.Clone()
	out.RemoveMany(c.removals)
	out.OrInPlace(c.insertions)
	return out
}

func (c *BitmapChanges) view() *bitmap.Bitmap {
	if c.merged == nil {
		c.merged = c.mergedWith(c.origin)
	}
	return c.merged
}

func (c *BitmapChanges) add(ids ...uint32) {
	c.removals.RemoveMany(bitmap.Of(ids...))
	c.insertions.AddMany(ids)
	c.merged = nil
}

func (c *BitmapChanges) remove(ids ...uint32) {
	c.insertions.RemoveMany(bitmap.Of(ids...))
	c.removals.AddMany(ids)
	c.merged = nil
}

// NewBitmap creates a transactional bitmap holding ids.
func NewBitmap(ids ...uint32) *Bitmap {
	b := &Bitmap{}
	b.init(bitmap.Of(ids...))
	return b
}

func (b *Bitmap) visible(tx *Tx) *bitmap.Bitmap {
	if layer, ok := LayerIfExists[*BitmapChanges](tx, b.id); ok {
		return layer.view()
	}
	return b.load(tx)
}

// Contains reports whether id is present.
func (b *Bitmap) Contains(tx *Tx, id uint32) bool {
	return b.visible(tx).Contains(id)
}

// Cardinality returns the number of keys visible to tx.
func (b *Bitmap) Cardinality(tx *Tx) int {
	return b.visible(tx).Cardinality()
}

// Snapshot returns the bitmap visible to tx. The result must not be
// modified. Every call counts as a read.
func (b *Bitmap) Snapshot(tx *Tx) *bitmap.Bitmap {
	b.reads.Add(1)
	return b.visible(tx)
}

// ReadCount returns how many snapshots have been taken.
func (b *Bitmap) ReadCount() uint64 {
	return b.reads.Load()
}

// Add inserts ids.
func (b *Bitmap) Add(tx *Tx, ids ...uint32) error {
	if len(ids) == 0 {
		return nil
	}
	if tx == nil {
		_, err := b.write(func(cur *bitmap.Bitmap) (*bitmap.Bitmap, bool, error) {
			next := cur.Clone()
			next.AddMany(ids)
			return next, true, nil
		})
		return err
	}
	layer, err := GetOrCreateLayer[*BitmapChanges, *bitmap.Bitmap](tx, b)
	if err != nil {
		return err
	}
	layer.add(ids...)
	return nil
}

// Remove deletes ids.
func (b *Bitmap) Remove(tx *Tx, ids ...uint32) error {
	if len(ids) == 0 {
		return nil
	}
	if tx == nil {
		_, err := b.write(func(cur *bitmap.Bitmap) (*bitmap.Bitmap, bool, error) {
			next := cur.Clone()
			next.RemoveMany(bitmap.Of(ids...))
			return next, true, nil
		})
		return err
	}
	layer, err := GetOrCreateLayer[*BitmapChanges, *bitmap.Bitmap](tx, b)
	if err != nil {
		return err
	}
	layer.remove(ids...)
	return nil
}

// View returns the bitmap as seen by tx, usable as a formula source.
func (b *Bitmap) View(tx *Tx) View {
	return View{b: b, tx: tx}
}

// CreateLayer implements Producer.
func (b *Bitmap) CreateLayer(tx *Tx) *BitmapChanges {
	return &BitmapChanges{
		origin:     b.load(tx),
		insertions: bitmap.New(),
		removals:   bitmap.New(),
	}
}

// CreateCopyWithMergedLayer implements Producer.
func (b *Bitmap) CreateCopyWithMergedLayer(layer *BitmapChanges, m *Maintainer) (*bitmap.Bitmap, error) {
	if err := layer.checkOwner(m, b.id); err != nil {
		return nil, err
	}
	current := b.state.newest()
	if !layer.Modified() {
		return current, nil
	}
	return layer.mergedWith(current), nil
}

// Publish implements Producer.
func (b *Bitmap) Publish(value *bitmap.Bitmap, c *Commit) {
	b.publish(value, c)
}

// RemoveLayer implements Producer.
func (b *Bitmap) RemoveLayer(m *Maintainer) {
	m.remove(b.id)
}

// View is a read handle on a Bitmap bound to a transaction.
type View struct {
	b  *Bitmap
	tx *Tx
}

// ID returns the producer id of the underlying bitmap.
func (v View) ID() uint64 {
	return v.b.id
}

// Version returns the version of the published bitmap the view reads.
func (v View) Version() uint64 {
	return v.b.VersionAt(v.tx)
}

// Cardinality returns the number of visible keys without counting a read.
func (v View) Cardinality() int {
	return v.b.Cardinality(v.tx)
}

// Bitmap returns the visible keys and counts a read.
func (v View) Bitmap() *bitmap.Bitmap {
	return v.b.Snapshot(v.tx)
}

// HasPendingChanges reports whether the bound transaction holds uncommitted
// changes of the bitmap.
func (v View) HasPendingChanges() bool {
	layer, ok := LayerIfExists[*BitmapChanges](v.tx, v.b.id)
	return ok && layer.Modified()
}
