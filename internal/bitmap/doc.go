// Package bitmap provides the primary-key set algebra used by query evaluation.
//
// Bitmap wraps a Roaring bitmap and is treated as immutable once it is handed
// to a formula or published by an index: And, Or, AndNot, AndAll and OrAll
// return new bitmaps and may return one of their inputs unchanged (for
// example Or(a, Empty()) returns a).
//
// The in-place methods (Add, RemoveMany, OrInPlace, ...) exist for working
// copies obtained from New, Of, Range or Clone, such as the diff layers of a
// transactional bitmap.
//
// # Example Usage
//
//	a := bitmap.Of(1, 2, 3, 8)
//	b := bitmap.Of(2, 3, 5)
//
//	bitmap.And(a, b)                     // {2, 3}
//	bitmap.Or(a, b)                      // {1, 2, 3, 5, 8}
//	bitmap.AndNot(bitmap.Range(1, 11), a) // {4, 5, 6, 7, 9, 10}
package bitmap
