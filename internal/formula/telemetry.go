package formula

// Telemetry summarizes an evaluated formula for observability.
type Telemetry struct {
	Hash                 uint64
	Nodes                int
	FlattenedNodes       int
	EstimatedCost        int64
	ActualCost           int64
	EstimatedCardinality int
	ActualCardinality    int
	Cacheable            bool
}

// Collect computes f if needed and returns its telemetry.
func Collect(f *Formula) Telemetry {
	t := Telemetry{
		Hash:                 f.Hash(),
		EstimatedCost:        f.EstimatedCost(),
		EstimatedCardinality: f.EstimatedCardinality(),
		ActualCardinality:    f.Compute().Cardinality(),
		ActualCost:           f.Cost(),
		Cacheable:            f.Cacheable(),
	}
	Walk(f, func(n *Formula) bool {
		t.Nodes++
		if n.kind == KindFlattened {
			t.FlattenedNodes++
		}
		return true
	})
	return t
}
