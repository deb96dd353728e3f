package formula

import "fmt"

// And builds the intersection of children in canonical form.
//
// Skip and nil children are dropped and any Empty child makes the result
// Empty. Nested AND children are flattened one level. FUTURE_NOT children are
// promoted: their inner formulas are subtracted from the intersection of the
// remaining children. No children yield Empty, a single child is returned
// unchanged.
func And(children ...*Formula) *Formula {
	flat := make([]*Formula, 0, len(children))
	var (
		negated  []*Formula
		superset SupersetSupplier
	)
	for _, c := range children {
		if c == nil {
			continue
		}
		switch c.kind {
		case KindSkip:
		case KindEmpty:
			return Empty()
		case KindAnd:
			flat = append(flat, c.children...)
		case KindFutureNot:
			negated = append(negated, c.children[0])
			if superset == nil {
				superset = c.superset
			}
		case KindConstant, KindOr, KindNot, KindAttribute, KindDeferred, KindFlattened:
			flat = append(flat, c)
		default:
			panic(fmt.Sprintf("formula: unknown kind %d", uint8(c.kind)))
		}
	}

	if len(negated) > 0 {
		subtracted := Or(negated...)
		if len(flat) == 0 {
			// Nothing to subtract from yet: keep deferring to the super-set.
			return &Formula{kind: KindFutureNot, superset: superset, children: []*Formula{subtracted}}
		}
		return Not(subtracted, wrap(KindAnd, flat))
	}
	return wrap(KindAnd, flat)
}

// Or builds the union of children in canonical form.
//
// Skip, Empty and nil children are dropped and nested OR children are
// flattened one level. No children yield Empty, a single child is returned
// unchanged.
func Or(children ...*Formula) *Formula {
	flat := make([]*Formula, 0, len(children))
	for _, c := range children {
		if c == nil {
			continue
		}
		switch c.kind {
		case KindSkip, KindEmpty:
		case KindOr:
			flat = append(flat, c.children...)
		case KindConstant, KindAnd, KindNot, KindFutureNot, KindAttribute, KindDeferred, KindFlattened:
			flat = append(flat, c)
		default:
			panic(fmt.Sprintf("formula: unknown kind %d", uint8(c.kind)))
		}
	}
	return wrap(KindOr, flat)
}

// Not builds superset minus subtracted. It always wraps.
func Not(subtracted, superset *Formula) *Formula {
	if subtracted == nil {
		subtracted = Empty()
	}
	if superset == nil {
		superset = Empty()
	}
	return &Formula{kind: KindNot, children: []*Formula{subtracted, superset}}
}

func wrap(kind Kind, children []*Formula) *Formula {
	switch len(children) {
	case 0:
		return Empty()
	case 1:
		return children[0]
	default:
		return &Formula{kind: kind, children: children}
	}
}
