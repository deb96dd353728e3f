package bitmap

import (
	"encoding/binary"
	"io"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"
)

// Bitmap is a sorted, duplicate-free set of 32-bit primary keys.
// It wraps the official roaring implementation.
//
// A Bitmap handed out by an index or computed by a formula is treated as
// immutable: the algebra functions (And, Or, AndNot, ...) always return new
// bitmaps. The in-place methods are reserved for working copies the caller
// owns exclusively (see Clone).
type Bitmap struct {
	rb *roaring.Bitmap
}

var empty = &Bitmap{rb: roaring.New()}

// Empty returns the shared empty bitmap. It must never be mutated.
func Empty() *Bitmap {
	return empty
}

// New creates a new empty bitmap owned by the caller.
func New() *Bitmap {
	return &Bitmap{rb: roaring.New()}
}

// Of creates a bitmap containing the given keys.
func Of(ids ...uint32) *Bitmap {
	return &Bitmap{rb: roaring.BitmapOf(ids...)}
}

// Range creates a bitmap containing every key in [lo, hi).
func Range(lo, hi uint32) *Bitmap {
	rb := roaring.New()
	if hi > lo {
		rb.AddRange(uint64(lo), uint64(hi))
	}
	return &Bitmap{rb: rb}
}

// Wrap takes ownership of rb.
func Wrap(rb *roaring.Bitmap) *Bitmap {
	if rb == nil || rb.IsEmpty() {
		return empty
	}
	return &Bitmap{rb: rb}
}

// Roaring exposes the underlying roaring bitmap. Callers must not mutate it.
func (b *Bitmap) Roaring() *roaring.Bitmap {
	if b == nil {
		return empty.rb
	}
	return b.rb
}

// IsEmpty returns true if the bitmap has no keys.
func (b *Bitmap) IsEmpty() bool {
	return b == nil || b.rb.IsEmpty()
}

// Cardinality returns the number of keys in the bitmap.
func (b *Bitmap) Cardinality() int {
	if b == nil {
		return 0
	}
	return int(b.rb.GetCardinality())
}

// Contains checks if a key is in the bitmap.
func (b *Bitmap) Contains(id uint32) bool {
	return b != nil && b.rb.Contains(id)
}

// Min returns the smallest key. ok is false for an empty bitmap.
func (b *Bitmap) Min() (uint32, bool) {
	if b.IsEmpty() {
		return 0, false
	}
	return b.rb.Minimum(), true
}

// Max returns the largest key. ok is false for an empty bitmap.
func (b *Bitmap) Max() (uint32, bool) {
	if b.IsEmpty() {
		return 0, false
	}
	return b.rb.Maximum(), true
}

// Rank returns the number of keys less than or equal to id.
func (b *Bitmap) Rank(id uint32) int {
	if b == nil {
		return 0
	}
	return int(b.rb.Rank(id))
}

// Select returns the key at position i (0-based) in sorted order.
func (b *Bitmap) Select(i int) (uint32, bool) {
	if b == nil || i < 0 || i >= b.Cardinality() {
		return 0, false
	}
	v, err := b.rb.Select(uint32(i))
	if err != nil {
		return 0, false
	}
	return v, true
}

// ToArray returns the keys in ascending order.
func (b *Bitmap) ToArray() []uint32 {
	if b == nil {
		return nil
	}
	return b.rb.ToArray()
}

// ForEach iterates over the bitmap in ascending order until fn returns false.
func (b *Bitmap) ForEach(fn func(id uint32) bool) {
	if b == nil {
		return
	}
	it := b.rb.Iterator()
	for it.HasNext() {
		if !fn(it.Next()) {
			break
		}
	}
}

// Iterator returns an iterator over the bitmap.
func (b *Bitmap) Iterator() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		b.ForEach(yield)
	}
}

// Equal reports element-wise equality.
func (b *Bitmap) Equal(other *Bitmap) bool {
	if b.IsEmpty() || other.IsEmpty() {
		return b.IsEmpty() && other.IsEmpty()
	}
	return b.rb.Equals(other.rb)
}

// Clone returns a deep copy the caller owns.
func (b *Bitmap) Clone() *Bitmap {
	if b == nil {
		return New()
	}
	return &Bitmap{rb: b.rb.Clone()}
}

// ContentHash returns a 64-bit hash of the key sequence.
func (b *Bitmap) ContentHash() uint64 {
	d := xxhash.New()
	var buf [4]byte
	b.ForEach(func(id uint32) bool {
		binary.LittleEndian.PutUint32(buf[:], id)
		_, _ = d.Write(buf[:])
		return true
	})
	return d.Sum64()
}

// SizeInBytes returns the serialized size of the bitmap.
func (b *Bitmap) SizeInBytes() int {
	if b == nil {
		return 0
	}
	return int(b.rb.GetSerializedSizeInBytes())
}

// String renders the bitmap for diagnostics.
func (b *Bitmap) String() string {
	if b == nil {
		return "{}"
	}
	return b.rb.String()
}

// Add adds a key. Only valid on an owned working copy.
func (b *Bitmap) Add(id uint32) {
	b.rb.Add(id)
}

// AddMany adds keys. Only valid on an owned working copy.
func (b *Bitmap) AddMany(ids []uint32) {
	b.rb.AddMany(ids)
}

// Remove removes a key. Only valid on an owned working copy.
func (b *Bitmap) Remove(id uint32) {
	b.rb.Remove(id)
}

// RemoveMany removes every key in other. Only valid on an owned working copy.
func (b *Bitmap) RemoveMany(other *Bitmap) {
	if other.IsEmpty() {
		return
	}
	b.rb.AndNot(other.rb)
}

// OrInPlace adds every key in other. Only valid on an owned working copy.
func (b *Bitmap) OrInPlace(other *Bitmap) {
	if other.IsEmpty() {
		return
	}
	b.rb.Or(other.rb)
}

// Clear removes all keys. Only valid on an owned working copy.
func (b *Bitmap) Clear() {
	b.rb.Clear()
}

// WriteTo writes the bitmap in the portable roaring format.
func (b *Bitmap) WriteTo(w io.Writer) (int64, error) {
	return b.Roaring().WriteTo(w)
}

// ReadFrom replaces the content with a bitmap read from r.
func (b *Bitmap) ReadFrom(r io.Reader) (int64, error) {
	if b.rb == nil {
		b.rb = roaring.New()
	}
	return b.rb.ReadFrom(r)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b *Bitmap) MarshalBinary() ([]byte, error) {
	return b.Roaring().ToBytes()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *Bitmap) UnmarshalBinary(data []byte) error {
	rb := roaring.New()
	if err := rb.UnmarshalBinary(data); err != nil {
		return err
	}
	b.rb = rb
	return nil
}
