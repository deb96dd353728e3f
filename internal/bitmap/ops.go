package bitmap

import "github.com/RoaringBitmap/roaring/v2"

// And computes the intersection of two bitmaps.
func And(a, b *Bitmap) *Bitmap {
	if a.IsEmpty() || b.IsEmpty() {
		return empty
	}
	return Wrap(roaring.And(a.rb, b.rb))
}

// Or computes the union of two bitmaps.
func Or(a, b *Bitmap) *Bitmap {
	switch {
	case a.IsEmpty() && b.IsEmpty():
		return empty
	case a.IsEmpty():
		return b
	case b.IsEmpty():
		return a
	}
	return Wrap(roaring.Or(a.rb, b.rb))
}

// AndNot computes a minus b.
func AndNot(a, b *Bitmap) *Bitmap {
	if a.IsEmpty() {
		return empty
	}
	if b.IsEmpty() {
		return a
	}
	return Wrap(roaring.AndNot(a.rb, b.rb))
}

// AndAll intersects all bitmaps. It stops early on the first empty input,
// so callers should pass the cheapest (smallest) bitmaps first.
func AndAll(bs ...*Bitmap) *Bitmap {
	switch len(bs) {
	case 0:
		return empty
	case 1:
		if bs[0].IsEmpty() {
			return empty
		}
		return bs[0]
	}

	rbs := make([]*roaring.Bitmap, 0, len(bs))
	for _, b := range bs {
		if b.IsEmpty() {
			return empty
		}
		rbs = append(rbs, b.rb)
	}
	return Wrap(roaring.FastAnd(rbs...))
}

// OrAll unions all bitmaps.
func OrAll(bs ...*Bitmap) *Bitmap {
	rbs := make([]*roaring.Bitmap, 0, len(bs))
	var last *Bitmap
	for _, b := range bs {
		if b.IsEmpty() {
			continue
		}
		rbs = append(rbs, b.rb)
		last = b
	}
	switch len(rbs) {
	case 0:
		return empty
	case 1:
		return last
	}
	return Wrap(roaring.FastOr(rbs...))
}
