package comm

import (
	"context"
	"fmt"
	"sync"
)

// mailKey addresses one directed, tagged channel between two units.
type mailKey struct {
	from, to, tag int
}

// hub is the shared state of an in-process group: one buffered channel per
// (from,to,tag) triple plus a generation barrier.
type hub struct {
	size int

	mu    sync.Mutex
	boxes map[mailKey]chan []float64

	bmu     sync.Mutex
	bcond   *sync.Cond
	waiting int
	gen     int

	closed chan struct{}
	once   sync.Once
}

func (h *hub) box(k mailKey) chan []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.boxes[k]
	if !ok {
		// Capacity 1: each (from,to,tag) carries at most one in-flight
		// message per iteration, so a unit can post both halo sends
		// without blocking on its neighbors.
		ch = make(chan []float64, 1)
		h.boxes[k] = ch
	}
	return ch
}

// Local is the shared-memory transport: every unit is a goroutine of the
// same process and "sending" a halo column is a channel handoff, which also
// publishes the writes to the receiver.
type Local struct {
	rank int
	h    *hub
}

// NewLocalGroup creates a fully connected in-process group of size units.
// The returned endpoints share one hub; each belongs to exactly one
// goroutine.
func NewLocalGroup(size int) []*Local {
	h := &hub{
		size:   size,
		boxes:  make(map[mailKey]chan []float64),
		closed: make(chan struct{}),
	}
	h.bcond = sync.NewCond(&h.bmu)
	group := make([]*Local, size)
	for i := range group {
		group[i] = &Local{rank: i, h: h}
	}
	return group
}

func (l *Local) Rank() int { return l.rank }
func (l *Local) Size() int { return l.h.size }

func (l *Local) Send(ctx context.Context, to, tag int, data []float64) error {
	if to < 0 || to >= l.h.size {
		return fmt.Errorf("%w: send to rank %d of %d", ErrPeer, to, l.h.size)
	}
	msg := make([]float64, len(data))
	copy(msg, data)
	select {
	case l.h.box(mailKey{l.rank, to, tag}) <- msg:
		return nil
	case <-l.h.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) Recv(ctx context.Context, from, tag int, data []float64) error {
	if from < 0 || from >= l.h.size {
		return fmt.Errorf("%w: recv from rank %d of %d", ErrPeer, from, l.h.size)
	}
	select {
	case msg := <-l.h.box(mailKey{from, l.rank, tag}):
		if len(msg) != len(data) {
			return fmt.Errorf("%w: message length %d, want %d", ErrPeer, len(msg), len(data))
		}
		copy(data, msg)
		return nil
	case <-l.h.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) ReduceSum(ctx context.Context, v float64) (float64, error) {
	if l.rank != Root {
		return 0, l.Send(ctx, Root, tagReduce, []float64{v})
	}
	total := v
	buf := make([]float64, 1)
	for from := 1; from < l.h.size; from++ {
		if err := l.Recv(ctx, from, tagReduce, buf); err != nil {
			return 0, err
		}
		total += buf[0]
	}
	return total, nil
}

// Barrier is a generation barrier: the last arriving unit advances the
// generation and wakes the rest.
func (l *Local) Barrier(ctx context.Context) error {
	h := l.h
	h.bmu.Lock()
	defer h.bmu.Unlock()
	select {
	case <-h.closed:
		return ErrClosed
	default:
	}
	gen := h.gen
	h.waiting++
	if h.waiting == h.size {
		h.waiting = 0
		h.gen++
		h.bcond.Broadcast()
		return nil
	}
	for gen == h.gen {
		h.bcond.Wait()
		select {
		case <-h.closed:
			return ErrClosed
		default:
		}
	}
	return nil
}

func (l *Local) Close() error {
	l.h.once.Do(func() {
		close(l.h.closed)
		l.h.bmu.Lock()
		l.h.bcond.Broadcast()
		l.h.bmu.Unlock()
	})
	return nil
}
