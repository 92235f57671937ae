package field

// Partition is the contiguous column-block of the global grid owned by one
// unit. Units form a 1D chain; each owns nx columns plus one halo column per
// neighboring side.
type Partition struct {
	Rank   int
	Nranks int
	Nx     int
}

// First returns the global index of the unit's first owned column.
func (p Partition) First() int { return p.Rank * p.Nx }

// End returns one past the global index of the unit's last owned column.
func (p Partition) End() int { return (p.Rank + 1) * p.Nx }

func (p Partition) GlobalWidth() int { return p.Nx * p.Nranks }

func (p Partition) HasPrev() bool { return p.Rank > 0 }
func (p Partition) HasNext() bool { return p.Rank < p.Nranks-1 }

// Neighbors returns how many halo exchange partners the unit has: 2 for
// interior units, 1 for the chain ends, 0 for a single-unit run.
func (p Partition) Neighbors() int {
	n := 0
	if p.HasPrev() {
		n++
	}
	if p.HasNext() {
		n++
	}
	return n
}
