package formula

import "fmt"

// OperationCost returns the relative cost of processing one element by
// this node alone.
func (f *Formula) OperationCost() int64 {
	if f.kind == KindDeferred {
		return f.supplier.OperationCost()
	}
	return f.kind.operationCost()
}

// EstimatedCardinality guesses the result size without computing it.
func (f *Formula) EstimatedCardinality() int {
	return f.estCard.get(f.estimateCardinality)
}

func (f *Formula) estimateCardinality() int {
	switch f.kind {
	case KindEmpty, KindSkip:
		return 0
	case KindConstant:
		if f.source != nil {
			return f.source.Cardinality()
		}
		return f.constant.Cardinality()
	case KindFlattened:
		return f.constant.Cardinality()
	case KindAnd:
		smallest := -1
		for _, c := range f.children {
			if n := c.EstimatedCardinality(); smallest < 0 || n < smallest {
				smallest = n
			}
		}
		return max(smallest, 0)
	case KindOr:
		var sum int
		for _, c := range f.children {
			sum += c.EstimatedCardinality()
		}
		return sum
	case KindNot:
		return f.children[1].EstimatedCardinality()
	case KindFutureNot, KindAttribute:
		return f.children[0].EstimatedCardinality()
	case KindDeferred:
		return f.supplier.EstimatedCardinality()
	default:
		panic(fmt.Sprintf("formula: unknown kind %d", uint8(f.kind)))
	}
}

// EstimatedCost is the sum of the children's estimated costs plus the
// estimated cardinality times the operation cost.
func (f *Formula) EstimatedCost() int64 {
	return f.estCost.get(func() int64 {
		var sum int64
		for _, c := range f.children {
			sum += c.EstimatedCost()
		}
		return sum + int64(f.EstimatedCardinality())*f.OperationCost()
	})
}

// Cost is the actual cost, computing the formula if necessary. Children
// skipped by short-circuit evaluation contribute their estimate. A flattened
// formula reports the cost of the subtree it replaced.
func (f *Formula) Cost() int64 {
	return f.cost.get(func() int64 {
		if f.kind == KindFlattened {
			return f.recorded.Cost
		}
		result := f.Compute()
		var sum int64
		for _, c := range f.children {
			if c.Computed() {
				sum += c.Cost()
			} else {
				sum += c.EstimatedCost()
			}
		}
		return sum + int64(result.Cardinality())*f.OperationCost()
	})
}

// CostToPerformanceRatio is the cost paid per produced element. The higher
// it is, the more a cached result saves.
func (f *Formula) CostToPerformanceRatio() float64 {
	return float64(f.Cost()) / float64(max(1, f.Compute().Cardinality()))
}
