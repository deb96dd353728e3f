package formula

import (
	"fmt"
	"strings"
)

// Walk visits f and its descendants in pre-order. Returning false from fn
// skips the children of the visited node.
func Walk(f *Formula, fn func(*Formula) bool) {
	if f == nil || !fn(f) {
		return
	}
	for _, c := range f.children {
		Walk(c, fn)
	}
}

// Rewrite returns f with nodes replaced by fn. fn is called top-down; when it
// returns a different formula the replacement is used as is, otherwise the
// children are rewritten. Unchanged subtrees keep their instances.
func Rewrite(f *Formula, fn func(*Formula) *Formula) *Formula {
	if f == nil {
		return nil
	}
	if r := fn(f); r != nil && r != f {
		return r
	}
	if len(f.children) == 0 {
		return f
	}

	var changed bool
	children := make([]*Formula, len(f.children))
	for i, c := range f.children {
		children[i] = Rewrite(c, fn)
		if children[i] != c {
			changed = true
		}
	}
	if !changed {
		return f
	}
	return f.WithChildren(children...)
}

// Explain renders the tree with one node per line, including estimated
// figures and, for computed nodes, actual cardinality and cost.
func Explain(f *Formula) string {
	var sb strings.Builder
	explain(&sb, f, 0)
	return sb.String()
}

func explain(sb *strings.Builder, f *Formula, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(label(f))
	fmt.Fprintf(sb, " [hash=%016x estCard=%d estCost=%d", f.Hash(), f.EstimatedCardinality(), f.EstimatedCost())
	if f.Computed() {
		fmt.Fprintf(sb, " card=%d cost=%d", f.Compute().Cardinality(), f.Cost())
	}
	sb.WriteString("]\n")
	for _, c := range f.children {
		explain(sb, c, depth+1)
	}
}

func label(f *Formula) string {
	switch f.kind {
	case KindAnd, KindOr, KindNot, KindFutureNot, KindEmpty, KindSkip:
		return f.kind.String()
	case KindAttribute:
		return fmt.Sprintf("ATTRIBUTE(%s,%s)", f.name, f.locale)
	case KindConstant, KindDeferred, KindFlattened:
		return f.String()
	default:
		panic(fmt.Sprintf("formula: unknown kind %d", uint8(f.kind)))
	}
}
