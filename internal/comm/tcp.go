package comm

import (
	"context"
	"encoding/gob"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// envelope is the gob wire frame for one tagged message.
type envelope struct {
	From, Tag int
	Data      []float64
}

// peer holds one direction-stateful gob stream per side of a connection.
// The decoder must be the one that consumed the hello frame: gob streams
// carry type definitions once, on first use.
type peer struct {
	conn net.Conn
	mu   sync.Mutex // serializes gob writes
	enc  *gob.Encoder
	dec  *gob.Decoder
}

// TCP is the distributed transport: one process per unit, a full mesh of
// TCP connections, gob-framed messages demultiplexed by (from, tag).
type TCP struct {
	rank, size int
	ln         net.Listener
	peers      []*peer
	log        *zap.Logger

	mu    sync.Mutex
	inbox map[mailKey]chan []float64

	closed  chan struct{}
	once    sync.Once
	failure error
}

const dialRetryInterval = 100 * time.Millisecond

// DialTCP bootstraps the mesh for one unit. addrs lists every unit's listen
// address in rank order; the unit listens on addrs[rank], dials every lower
// rank and accepts from every higher one. It returns once all size-1 peer
// links are up. Bootstrap failure is fatal to the run.
func DialTCP(ctx context.Context, rank int, addrs []string, log *zap.Logger) (*TCP, error) {
	if rank < 0 || rank >= len(addrs) {
		return nil, fmt.Errorf("%w: rank %d outside address list of %d", ErrPeer, rank, len(addrs))
	}
	ln, err := net.Listen("tcp", addrs[rank])
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", ErrPeer, addrs[rank], err)
	}

	t := &TCP{
		rank:   rank,
		size:   len(addrs),
		ln:     ln,
		peers:  make([]*peer, len(addrs)),
		log:    log,
		inbox:  make(map[mailKey]chan []float64),
		closed: make(chan struct{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.acceptPeers(gctx) })
	for other := 0; other < rank; other++ {
		other := other
		g.Go(func() error { return t.dialPeer(gctx, other, addrs[other]) })
	}
	if err := g.Wait(); err != nil {
		ln.Close()
		return nil, err
	}

	for r, p := range t.peers {
		if r != rank && p != nil {
			go t.readLoop(r, p)
		}
	}
	log.Info("mesh established", zap.Int("rank", rank), zap.Int("size", t.size))
	return t, nil
}

// acceptPeers collects one connection from every higher rank. The dialer
// identifies itself with a hello envelope before any traffic.
func (t *TCP) acceptPeers(ctx context.Context) error {
	for n := t.size - 1 - t.rank; n > 0; n-- {
		conn, err := t.ln.Accept()
		if err != nil {
			return fmt.Errorf("%w: accept: %v", ErrPeer, err)
		}
		dec := gob.NewDecoder(conn)
		var hello envelope
		if err := dec.Decode(&hello); err != nil {
			conn.Close()
			return fmt.Errorf("%w: hello: %v", ErrPeer, err)
		}
		if hello.From <= t.rank || hello.From >= t.size {
			conn.Close()
			return fmt.Errorf("%w: unexpected hello from rank %d", ErrPeer, hello.From)
		}
		t.peers[hello.From] = &peer{conn: conn, enc: gob.NewEncoder(conn), dec: dec}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// dialPeer connects to a lower rank, retrying while that process comes up.
func (t *TCP) dialPeer(ctx context.Context, other int, addr string) error {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			enc := gob.NewEncoder(conn)
			if err := enc.Encode(envelope{From: t.rank, Tag: 0}); err != nil {
				conn.Close()
				return fmt.Errorf("%w: hello to rank %d: %v", ErrPeer, other, err)
			}
			t.peers[other] = &peer{conn: conn, enc: enc, dec: gob.NewDecoder(conn)}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: dial rank %d at %s: %v", ErrPeer, other, addr, err)
		case <-time.After(dialRetryInterval):
		}
	}
}

func (t *TCP) readLoop(from int, p *peer) {
	for {
		var env envelope
		if err := p.dec.Decode(&env); err != nil {
			select {
			case <-t.closed:
			default:
				t.fail(fmt.Errorf("%w: read from rank %d: %v", ErrPeer, from, err))
			}
			return
		}
		select {
		case t.box(mailKey{env.From, t.rank, env.Tag}) <- env.Data:
		case <-t.closed:
			return
		}
	}
}

func (t *TCP) box(k mailKey) chan []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.inbox[k]
	if !ok {
		ch = make(chan []float64, 4)
		t.inbox[k] = ch
	}
	return ch
}

// fail records the first transport error and tears the endpoint down. The
// run cannot continue past a communication failure.
func (t *TCP) fail(err error) {
	t.once.Do(func() {
		t.failure = err
		t.log.Error("transport failure", zap.Error(err))
		close(t.closed)
		t.ln.Close()
		for _, p := range t.peers {
			if p != nil {
				p.conn.Close()
			}
		}
	})
}

func (t *TCP) Rank() int { return t.rank }
func (t *TCP) Size() int { return t.size }

func (t *TCP) Send(ctx context.Context, to, tag int, data []float64) error {
	if to < 0 || to >= t.size || t.peers[to] == nil {
		return fmt.Errorf("%w: send to rank %d", ErrPeer, to)
	}
	select {
	case <-t.closed:
		return t.closeErr()
	default:
	}
	p := t.peers[to]
	p.mu.Lock()
	err := p.enc.Encode(envelope{From: t.rank, Tag: tag, Data: data})
	p.mu.Unlock()
	if err != nil {
		t.fail(fmt.Errorf("%w: send to rank %d: %v", ErrPeer, to, err))
		return t.closeErr()
	}
	return nil
}

func (t *TCP) Recv(ctx context.Context, from, tag int, data []float64) error {
	if from < 0 || from >= t.size {
		return fmt.Errorf("%w: recv from rank %d", ErrPeer, from)
	}
	select {
	case msg := <-t.box(mailKey{from, t.rank, tag}):
		if len(msg) != len(data) {
			return fmt.Errorf("%w: message length %d, want %d", ErrPeer, len(msg), len(data))
		}
		copy(data, msg)
		return nil
	case <-t.closed:
		return t.closeErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *TCP) ReduceSum(ctx context.Context, v float64) (float64, error) {
	if t.rank != Root {
		return 0, t.Send(ctx, Root, tagReduce, []float64{v})
	}
	total := v
	buf := make([]float64, 1)
	for from := 1; from < t.size; from++ {
		if err := t.Recv(ctx, from, tagReduce, buf); err != nil {
			return 0, err
		}
		total += buf[0]
	}
	return total, nil
}

// Barrier gathers a token at the root, which releases everyone once the
// whole chain has arrived.
func (t *TCP) Barrier(ctx context.Context) error {
	token := []float64{float64(t.rank)}
	if t.rank != Root {
		if err := t.Send(ctx, Root, tagBarrier, token); err != nil {
			return err
		}
		return t.Recv(ctx, Root, tagRelease, token)
	}
	for from := 1; from < t.size; from++ {
		if err := t.Recv(ctx, from, tagBarrier, token); err != nil {
			return err
		}
	}
	for to := 1; to < t.size; to++ {
		if err := t.Send(ctx, to, tagRelease, token); err != nil {
			return err
		}
	}
	return nil
}

func (t *TCP) closeErr() error {
	if t.failure != nil {
		return t.failure
	}
	return ErrClosed
}

func (t *TCP) Close() error {
	t.once.Do(func() {
		close(t.closed)
		t.ln.Close()
		for _, p := range t.peers {
			if p != nil {
				p.conn.Close()
			}
		}
		t.log.Info("transport closed", zap.Int("rank", t.rank))
	})
	return nil
}
