package field

// Slice is a half-open rectangle [X0,X1)x[Y0,Y1) of slab indices scoping one
// stencil application.
type Slice struct {
	X0, X1, Y0, Y1 int
}

func (s Slice) Cells() int {
	return (s.X1 - s.X0) * (s.Y1 - s.Y0)
}

// The three disjoint per-iteration regions. Their union covers every real
// cell exactly once, so the three updates can run concurrently on the same
// buffer pair.

func PrevBoundary(nx, ny int) Slice { return Slice{1, 2, 1, ny - 1} }
func NextBoundary(nx, ny int) Slice { return Slice{nx, nx + 1, 1, ny - 1} }
func Interior(nx, ny int) Slice     { return Slice{2, nx, 1, ny - 1} }
