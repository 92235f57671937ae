package comm

import (
	"context"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// freeAddrs reserves n loopback ports. The tiny window between releasing a
// port and the transport re-binding it is bridged by DialTCP's dial retry.
func freeAddrs(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	for i := range addrs {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		addrs[i] = ln.Addr().String()
		ln.Close()
	}
	return addrs
}

func dialMesh(t *testing.T, addrs []string) []*TCP {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endpoints := make([]*TCP, len(addrs))
	errs := make([]error, len(addrs))
	var wg sync.WaitGroup
	for rank := range addrs {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			endpoints[rank], errs[rank] = DialTCP(ctx, rank, addrs, zap.NewNop())
		}(rank)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d bootstrap: %v", rank, err)
		}
	}
	return endpoints
}

func TestTCPExchange(t *testing.T) {
	eps := dialMesh(t, freeAddrs(t, 2))
	defer eps[0].Close()
	defer eps[1].Close()
	ctx := context.Background()

	want := []float64{0.1, 0.2, 0.3, math.Inf(1)}
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := eps[0].Send(ctx, 1, TagToNext, want); err != nil {
			t.Errorf("send: %v", err)
		}
	}()

	got := make([]float64, len(want))
	go func() {
		defer wg.Done()
		if err := eps[1].Recv(ctx, 0, TagToNext, got); err != nil {
			t.Errorf("recv: %v", err)
		}
	}()
	wg.Wait()

	for i := range want {
		if math.Float64bits(got[i]) != math.Float64bits(want[i]) {
			t.Fatalf("element %d not bit-identical", i)
		}
	}
}

func TestTCPReduceAndBarrier(t *testing.T) {
	eps := dialMesh(t, freeAddrs(t, 3))
	ctx := context.Background()

	results := make([]float64, 3)
	var wg sync.WaitGroup
	for rank := range eps {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			v, err := eps[rank].ReduceSum(ctx, float64(10*(rank+1)))
			if err != nil {
				t.Errorf("rank %d reduce: %v", rank, err)
				return
			}
			results[rank] = v
			if err := eps[rank].Barrier(ctx); err != nil {
				t.Errorf("rank %d barrier: %v", rank, err)
			}
		}(rank)
	}
	wg.Wait()

	if results[Root] != 60 {
		t.Errorf("root got %v, want 60", results[Root])
	}
	if results[1] != 0 || results[2] != 0 {
		t.Error("non-root units must not retain the global value")
	}

	for _, ep := range eps {
		ep.Close()
	}
}

func TestTCPPeerFailureIsFatal(t *testing.T) {
	eps := dialMesh(t, freeAddrs(t, 2))
	ctx := context.Background()

	// Tear down one endpoint mid-run; the survivor's pending receive must
	// fail rather than hang or silently retry.
	done := make(chan error, 1)
	go func() {
		buf := make([]float64, 1)
		done <- eps[0].Recv(ctx, 1, TagToNext, buf)
	}()

	time.Sleep(50 * time.Millisecond)
	eps[1].Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("recv succeeded after peer teardown")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("recv still blocked after peer teardown")
	}
	eps[0].Close()
}
