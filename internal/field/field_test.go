package field

import (
	"testing"
)

func TestIndexLayout(t *testing.T) {
	f := New(4, 3)

	f.Set(0, 0, 1.5)
	f.Set(5, 2, 2.5)
	f.Set(2, 1, 3.5)

	if f.At(0, 0) != 1.5 || f.At(5, 2) != 2.5 || f.At(2, 1) != 3.5 {
		t.Error("values did not round-trip through the accessor")
	}
	if f.Nx() != 4 || f.Ny() != 3 {
		t.Errorf("dims %dx%d, want 4x3", f.Nx(), f.Ny())
	}
}

func TestBoundsViolationPanics(t *testing.T) {
	f := New(4, 3)

	cases := []struct {
		name string
		x, y int
	}{
		{"x negative", -1, 0},
		{"x past right halo", 6, 0},
		{"y negative", 0, -1},
		{"y past height", 0, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("At(%d,%d) did not panic", tc.x, tc.y)
				}
			}()
			f.At(tc.x, tc.y)
		})
	}
}

func TestColumnRoundTrip(t *testing.T) {
	f := New(2, 4)
	want := []float64{0.5, 1.5, 2.5, 3.5}
	f.SetColumn(1, want)

	got := f.Column(1)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("column[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// Column returns a copy, not a view.
	got[0] = 99
	if f.At(1, 0) != 0.5 {
		t.Error("mutating a returned column leaked into the field")
	}
}

func TestRealExcludesHalos(t *testing.T) {
	f := New(2, 3)
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			f.Set(x, y, float64(x*10+y))
		}
	}

	got := f.Real()
	want := []float64{10, 11, 12, 20, 21, 22}
	if len(got) != len(want) {
		t.Fatalf("real cells %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("real[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPartitionConservation(t *testing.T) {
	for _, nranks := range []int{1, 2, 3, 8} {
		total := 0
		for rank := 0; rank < nranks; rank++ {
			p := Partition{Rank: rank, Nranks: nranks, Nx: 5}
			total += p.End() - p.First()
		}
		p := Partition{Rank: 0, Nranks: nranks, Nx: 5}
		if total != p.GlobalWidth() {
			t.Errorf("nranks=%d: owned columns sum to %d, global width %d", nranks, total, p.GlobalWidth())
		}
	}
}

func TestPartitionNeighbors(t *testing.T) {
	cases := []struct {
		rank, nranks, want int
	}{
		{0, 1, 0},
		{0, 4, 1},
		{3, 4, 1},
		{1, 4, 2},
		{2, 4, 2},
	}
	for _, tc := range cases {
		p := Partition{Rank: tc.rank, Nranks: tc.nranks, Nx: 4}
		if got := p.Neighbors(); got != tc.want {
			t.Errorf("rank %d of %d: %d neighbors, want %d", tc.rank, tc.nranks, got, tc.want)
		}
	}
}

func TestSlicesCoverRealCellsOnce(t *testing.T) {
	nx, ny := 6, 5
	seen := make(map[[2]int]int)
	for _, s := range []Slice{PrevBoundary(nx, ny), NextBoundary(nx, ny), Interior(nx, ny)} {
		for x := s.X0; x < s.X1; x++ {
			for y := s.Y0; y < s.Y1; y++ {
				seen[[2]int{x, y}]++
			}
		}
	}
	for x := 1; x <= nx; x++ {
		for y := 1; y < ny-1; y++ {
			if seen[[2]int{x, y}] != 1 {
				t.Fatalf("cell (%d,%d) covered %d times", x, y, seen[[2]int{x, y}])
			}
		}
	}
	want := nx * (ny - 2)
	if len(seen) != want {
		t.Errorf("%d cells covered, want %d", len(seen), want)
	}
}
