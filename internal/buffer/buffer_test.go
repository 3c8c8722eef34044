package buffer

import (
	"math"
	"testing"
)

func fill(b *Buffer, n int) {
	for i := 0; i < n; i++ {
		b.Push(float64(i), float64(i))
	}
}

func TestIndexBeforeAt_Corners(t *testing.T) {
	b := New()
	fill(b, 10) // (0,0) .. (9,9)

	cases := []struct {
		name string
		t    float64
		want int
		ok   bool
	}{
		{"before-start", -1.0, 0, false},
		{"mid-low", 0.5, 0, true},
		{"mid-high", 5.0, 5, true},
		{"at-last", 10.0, 9, true},
		{"neg-inf", math.Inf(-1), 0, false},
		{"pos-inf", math.Inf(1), 9, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			i, ok := b.IndexBeforeAt(c.t)
			if ok != c.ok {
				t.Fatalf("ok = %v, want %v", ok, c.ok)
			}
			if ok && i != c.want {
				t.Fatalf("index = %d, want %d", i, c.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	b := New()
	for i := 0; i < 100; i++ {
		b.Push(float64(i), float64(i+1))
	}
	b.Truncate(10.0)

	if got := b.Len(); got != 10 {
		t.Fatalf("Len() = %d, want 10", got)
	}
	tMin, tMax, ok := b.TimeBounds()
	if !ok || tMin != 90 || tMax != 99 {
		t.Fatalf("TimeBounds() = (%v, %v, %v), want (90, 99, true)", tMin, tMax, ok)
	}
}

func TestTruncate_Empty(t *testing.T) {
	b := New()
	b.Truncate(10.0) // must not panic
	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}
}

func TestPlotPoints_FullRangeScaled(t *testing.T) {
	b := New()
	fill(b, 5)
	pts := b.PlotPoints(math.Inf(-1), math.Inf(1), 2.0)
	if len(pts) != 5 {
		t.Fatalf("len = %d, want 5", len(pts))
	}
	for i, p := range pts {
		if p.Y != float64(i)*2.0 {
			t.Errorf("pts[%d].Y = %v, want %v", i, p.Y, float64(i)*2.0)
		}
	}
}

func TestPlotPoints_EmptyBuffer(t *testing.T) {
	b := New()
	pts := b.PlotPoints(math.Inf(-1), math.Inf(1), 1.0)
	if pts != nil {
		t.Fatalf("expected nil for empty buffer, got %v", pts)
	}
}

func TestPlotPoints_ExcludedRange(t *testing.T) {
	b := New()
	fill(b, 5) // t in [0,4]
	pts := b.PlotPoints(100, 200, 1.0)
	if len(pts) != 0 {
		t.Fatalf("expected empty slice, got %d points", len(pts))
	}
}

func TestPlotPointsDecimated_Interpolates(t *testing.T) {
	b := New()
	b.Push(0, 0)
	b.Push(10, 100)

	pts := b.PlotPointsDecimated(0, 10, 3, 1.0)
	if len(pts) != 3 {
		t.Fatalf("len = %d, want 3", len(pts))
	}
	want := []float64{0, 50, 100}
	for i, p := range pts {
		if math.Abs(p.Y-want[i]) > 1e-9 {
			t.Errorf("pts[%d].Y = %v, want %v", i, p.Y, want[i])
		}
	}
}

func TestPlotPointsDecimated_HoldsBoundary(t *testing.T) {
	b := New()
	b.Push(5, 42)
	b.Push(10, 84)

	pts := b.PlotPointsDecimated(0, 20, 5, 1.0)
	// clamped to [5, 10]
	if pts[0].T != 5 || pts[len(pts)-1].T != 10 {
		t.Fatalf("expected clamped range [5,10], got [%v,%v]", pts[0].T, pts[len(pts)-1].T)
	}
}

func TestMemoryFootprint(t *testing.T) {
	b := New()
	fill(b, 3)
	used, capacity := b.MemoryFootprint()
	if used != 3*16 {
		t.Fatalf("used = %d, want %d", used, 3*16)
	}
	if capacity < used {
		t.Fatalf("capacity %d < used %d", capacity, used)
	}
}
