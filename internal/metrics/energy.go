package metrics

import "math"

// Energy tracks the globally reduced energy of the field over a run.
type Energy struct {
	name    string
	samples int
	final   float64
	peak    float64
}

func NewEnergy() *Energy {
	return &Energy{name: "energy"}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(iter int, t, energy float64) {
	e.samples++
	e.final = energy
	e.peak = math.Max(e.peak, energy)
}

// Value returns the most recently observed reduced energy.
func (e *Energy) Value() float64 { return e.final }

// Peak returns the maximum reduced energy seen during the run.
func (e *Energy) Peak() float64 { return e.peak }

func (e *Energy) Reset() {
	e.samples = 0
	e.final = 0
	e.peak = 0
}
