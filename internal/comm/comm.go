// Package comm provides the halo exchange substrate between the units of a
// simulation chain.
//
// Two interchangeable transports implement the Comm interface:
//
//   - Local: all units are goroutines of one process; a send degenerates to
//     a buffered channel handoff of the halo column.
//   - TCP: one process per unit; halo columns travel as gob-framed messages.
//
// The choice is configuration, not behavior: the stencil kernel and the
// orchestrator are written once against Comm.
package comm

import (
	"context"
	"errors"
)

// Message tags. Sends toward the previous and next neighbor carry distinct
// tags so the two directions can never collide at a receiver.
const (
	TagToPrev = 1
	TagToNext = 2

	tagReduce  = 3
	tagBarrier = 4
	tagRelease = 5
)

// Root is the coordinating unit: it alone retains the reduced energy value
// and writes the artifact header.
const Root = 0

var (
	// ErrClosed indicates an operation on a torn-down transport.
	ErrClosed = errors.New("comm: transport closed")

	// ErrPeer indicates a peer connection could not be established or died
	// mid-run. Any such failure is fatal to the whole run: a missed halo
	// exchange silently corrupts the next iteration's physics.
	ErrPeer = errors.New("comm: peer failure")
)

// Comm is one unit's endpoint into the chain. All operations block until
// delivered or failed; there is no retry, because retransmitting a stale
// halo would break the lock-step iteration contract.
type Comm interface {
	Rank() int
	Size() int

	// Send delivers data to peer `to` under the given tag.
	Send(ctx context.Context, to, tag int, data []float64) error

	// Recv blocks until the matching message from peer `from` arrives and
	// copies it into data, which must have the exact expected length.
	Recv(ctx context.Context, from, tag int, data []float64) error

	// ReduceSum folds v across all units. The root unit receives the total,
	// summed in rank order so repeated runs reduce identically; every other
	// unit gets 0. All units must enter the reduction each iteration.
	ReduceSum(ctx context.Context, v float64) (float64, error)

	// Barrier blocks until every unit of the chain has entered it.
	Barrier(ctx context.Context) error

	Close() error
}
