// Package stencil implements the explicit five-point heat-diffusion update.
package stencil

import (
	"github.com/veghal/heatgrid/internal/config"
	"github.com/veghal/heatgrid/internal/field"
)

// Apply advances every cell of slice s from old into next and returns the
// slice's energy contribution sum(next(x,y) * dx^2).
//
// Precondition: boundary conditions are injected into old in place, per cell,
// before that cell's neighbor reads. The injected values must land before any
// read in the same call uses them, which the per-cell ordering below
// guarantees; callers must not assume old is left untouched.
func Apply(old, next *field.Field, s field.Slice, cfg *config.Config) float64 {
	gamma := cfg.DiffusionNumber()
	dx2 := cfg.Dx * cfg.Dx
	energy := 0.0

	for x := s.X0; x < s.X1; x++ {
		for y := s.Y0; y < s.Y1; y++ {
			inject(old, x, y, cfg)

			v := (1-4*gamma)*old.At(x, y) +
				gamma*(old.At(x+1, y)+old.At(x-1, y)+old.At(x, y+1)+old.At(x, y-1))
			next.Set(x, y, v)
			energy += v * dx2
		}
	}
	return energy
}

// inject forces the physical boundary conditions adjacent to cell (x,y):
// cold top and bottom edges, a hot left edge on the first unit of the chain,
// a cold right edge on the last. Halo columns fed by a neighbor are never
// touched.
func inject(old *field.Field, x, y int, cfg *config.Config) {
	if y == 1 {
		old.Set(x, 0, 0)
	}
	if y == cfg.Ny-2 {
		old.Set(x, cfg.Ny-1, 0)
	}
	if cfg.Rank == 0 && x == 1 {
		old.Set(x-1, y, 1)
	}
	if cfg.Rank == cfg.Nranks-1 && x == cfg.Nx {
		old.Set(x+1, y, 0)
	}
}
