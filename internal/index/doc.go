// Package index implements the transactional entity index of a collection.
//
// An EntityIndex keeps a universe bitmap of all primary keys, one filter
// index per attribute (name and locale) mapping each value to the bitmap of
// keys holding it, reference indexes that group keys into ordered atomic
// blocks, the set of known locales and a dirty flag. All of it is built from
// txn primitives, so writers change the index inside a transaction while
// readers keep querying the last committed state.
//
// Queries are expressed as formulas over views of the index bitmaps:
//
//	f := formula.And(
//		idx.AttributeEquals(tx, index.AttributeKey{Name: "color"}, "red"),
//		idx.AttributeRange(tx, index.AttributeKey{Name: "price"}, "10", "100"),
//	)
//	ids := f.Compute()
//
// Sorters order results by attribute value or by reference block.
package index
