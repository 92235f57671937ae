package metrics

import "math"

// Stability counts energy observations that left the finite healthy range.
// A diverging explicit scheme shows up here long before the field itself is
// inspected.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{name: "stability", threshold: threshold}
}

func (s *Stability) Name() string { return s.name }

func (s *Stability) Observe(iter int, t, energy float64) {
	s.samples++
	if math.IsNaN(energy) || math.IsInf(energy, 0) || math.Abs(energy) > s.threshold {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
