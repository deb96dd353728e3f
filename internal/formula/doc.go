// Package formula implements lazily evaluated boolean expressions over
// bitmaps.
//
// A formula tree is built once per query from constants, transactional
// sources and deferred suppliers, combined with the factory functions And,
// Or and Not. The factory keeps trees canonical (identity elimination, one
// level flattening of nested AND/OR, promotion of FUTURE_NOT) so that
// equivalent trees share a structural hash, which is the key of the result
// cache.
//
//	a := formula.FromSource(colors.View(tx))
//	b := formula.FromSource(sizes.View(tx))
//	f := formula.Not(formula.And(a, b), formula.FromSource(universe.View(tx)))
//	ids := f.Compute()
//
// Every node memoizes its result, hash and cost figures in write-once cells.
// Two goroutines computing the same fresh node may both do the work; the
// first stored result is returned to both.
package formula
