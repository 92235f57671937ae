package field

import (
	"fmt"
	"math"
)

// Field is one unit's slab of the global temperature grid, stored flat in
// row-major (x, y) order: linear offset = x*ny + y. Column 0 is the left halo,
// column nx+1 the right halo; columns 1..nx hold the unit's real cells.
type Field struct {
	nx, ny int
	data   []float64
}

func New(nx, ny int) *Field {
	return &Field{nx: nx, ny: ny, data: make([]float64, (nx+2)*ny)}
}

func (f *Field) Nx() int { return f.nx }
func (f *Field) Ny() int { return f.ny }

func (f *Field) index(x, y int) int {
	if x < 0 || x >= f.nx+2 || y < 0 || y >= f.ny {
		panic(fmt.Sprintf("field: index (%d,%d) outside %dx%d slab", x, y, f.nx+2, f.ny))
	}
	return x*f.ny + y
}

func (f *Field) At(x, y int) float64     { return f.data[f.index(x, y)] }
func (f *Field) Set(x, y int, v float64) { f.data[f.index(x, y)] = v }

// Column copies column x (halo columns included) into a fresh slice of
// length ny. Used to stage a halo send.
func (f *Field) Column(x int) []float64 {
	off := f.index(x, 0)
	col := make([]float64, f.ny)
	copy(col, f.data[off:off+f.ny])
	return col
}

// SetColumn overwrites column x with vals. Used to land a received halo.
func (f *Field) SetColumn(x int, vals []float64) {
	if len(vals) != f.ny {
		panic(fmt.Sprintf("field: column length %d, want %d", len(vals), f.ny))
	}
	off := f.index(x, 0)
	copy(f.data[off:off+f.ny], vals)
}

// Real returns the nx*ny real-cell values in column order, halos excluded.
// This is the per-unit body region of the output artifact.
func (f *Field) Real() []float64 {
	out := make([]float64, 0, f.nx*f.ny)
	for x := 1; x <= f.nx; x++ {
		off := f.index(x, 0)
		out = append(out, f.data[off:off+f.ny]...)
	}
	return out
}

func (f *Field) IsValid() bool {
	for _, v := range f.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
