package sim

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/veghal/heatgrid/internal/comm"
	"github.com/veghal/heatgrid/internal/config"
	"github.com/veghal/heatgrid/internal/field"
	"github.com/veghal/heatgrid/internal/metrics"
)

// GroupResult is the outcome of a shared-memory group run: the coordinating
// unit's result plus every unit's final slab in rank order, ready for the
// artifact writer.
type GroupResult struct {
	Root   *Result
	Fields []*field.Field
}

// RunGroup executes a whole chain with the local transport, one goroutine
// per unit. obs, when non-nil, is attached to the coordinating unit.
func RunGroup(ctx context.Context, b *config.Base, log *zap.Logger, obs Observer) (*GroupResult, error) {
	if b.Ranks < 1 {
		return nil, fmt.Errorf("sim: unit count must be positive, got %d", b.Ranks)
	}
	group := comm.NewLocalGroup(b.Ranks)

	sims := make([]*Simulator, b.Ranks)
	results := make([]*Result, b.Ranks)
	errs := make([]error, b.Ranks)

	var wg sync.WaitGroup
	for rank := 0; rank < b.Ranks; rank++ {
		cfg, err := config.Derive(b.Nx, b.Ny, b.Ni, rank, b.Ranks)
		if err != nil {
			return nil, err
		}
		if b.Nout > 0 {
			cfg.Nout = b.Nout
		}

		s := New(cfg, group[rank], log)
		if rank == comm.Root {
			s.AddMetric(metrics.NewEnergy())
			s.AddMetric(metrics.NewStability(1e12))
			if obs != nil {
				s.AddObserver(obs)
			}
		}
		sims[rank] = s

		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			results[rank], errs[rank] = s.Run(ctx)
		}(rank)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	fields := make([]*field.Field, b.Ranks)
	for rank, s := range sims {
		fields[rank] = s.Field()
	}
	return &GroupResult{Root: results[comm.Root], Fields: fields}, nil
}
