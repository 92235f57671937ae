package sim

// Metric observes the reduced energy trace on the coordinating unit and
// folds it into a scalar diagnostic.
type Metric interface {
	Name() string
	Observe(iter int, t, energy float64)
	Value() float64
	Reset()
}

// Observer receives each emitted energy observation as it happens. Used by
// the live view.
type Observer interface {
	OnEnergy(iter int, t, energy float64)
}

// Result is one unit's view of a completed run. Only the coordinating unit
// carries the reduced energy trace; every other unit's trace is empty.
type Result struct {
	Iters   []int
	Times   []float64
	Energy  []float64
	Metrics map[string]float64
}
