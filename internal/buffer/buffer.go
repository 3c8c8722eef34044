// Package buffer implements the per-signal time-series store that backs
// live plotting and bulk export: an append-only sequence of (t, y) points
// with range queries, decimation and bounded lifetime.
package buffer

import (
	"math"
	"sync"

	"github.com/caio/go-tdigest/v4"
)

// SignalID identifies a signal. It is opaque to this package: for the
// memory sampler it is a target address, for the RTT sampler a packet
// field index, for the simulator an enumeration index.
type SignalID = uint32

// Point is one (t, y) sample. T is seconds on the sampler's own clock;
// absolute epoch is unspecified.
type Point struct {
	T float64
	Y float64
}

// Buffer is an ordered, append-only sequence of Points with the invariant
// that T is nondecreasing across adjacent entries. It is safe for
// concurrent use: the acquisition consumer appends from one goroutine
// while the status/control HTTP surface reads from others.
type Buffer struct {
	mu     sync.RWMutex
	points []Point
	digest *tdigest.TDigest
}

// New returns an empty Buffer. A live quantile digest is maintained
// alongside the points for cheap health reporting; failure to allocate it
// (practically never, for a fixed compression factor) just disables that
// diagnostic, it never affects correctness of the point sequence.
func New() *Buffer {
	d, _ := tdigest.New(tdigest.Compression(100))
	return &Buffer{digest: d}
}

// Push appends (t, y). The caller is responsible for t being >= the last
// pushed t; Push does not re-validate monotonicity.
func (b *Buffer) Push(t, y float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.points = append(b.points, Point{T: t, Y: y})
	if b.digest != nil {
		_ = b.digest.Add(y)
	}
}

// Len returns the number of points currently stored.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.points)
}

// Samples returns a copy of the full underlying point sequence. The spec
// describes this as a "borrow"; in Go, where the caller cannot be trusted
// not to retain a reference past the next Push, a copy is the safe
// equivalent.
func (b *Buffer) Samples() []Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Point, len(b.points))
	copy(out, b.points)
	return out
}

// TimeBounds returns (tMin, tMax) and true, or (0, 0, false) if the buffer
// is empty.
func (b *Buffer) TimeBounds() (tMin, tMax float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.points) == 0 {
		return 0, 0, false
	}
	return b.points[0].T, b.points[len(b.points)-1].T, true
}

// indexBeforeAt returns the largest index i with points[i].T <= t, or -1 if
// t is before points[0].T. Callers must hold at least a read lock and pass
// a non-empty points slice.
//
// The search is a closed-interval binary search over [0, len-1] that
// converges when a+1 == b; for t >= points[last].T it returns last.
func indexBeforeAt(points []Point, t float64) int {
	if len(points) == 0 || t < points[0].T {
		return -1
	}
	if t >= points[len(points)-1].T {
		return len(points) - 1
	}
	a, b := 0, len(points)-1
	for a+1 != b {
		mid := a + (b-a)/2
		if points[mid].T <= t {
			a = mid
		} else {
			b = mid
		}
	}
	return a
}

// IndexBeforeAt is the exported form of the anchor algorithm used by range
// queries and interpolation, documented in spec.md §4.1.
func (b *Buffer) IndexBeforeAt(t float64) (int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := indexBeforeAt(b.points, t)
	if i < 0 {
		return 0, false
	}
	return i, true
}

// PlotPoints returns a copy of the sub-range of points whose T lies in
// [fromT, toT], each Y multiplied by scale. fromT/toT may be +-Inf. The
// result is empty when the buffer is empty or the interval excludes every
// sample.
func (b *Buffer) PlotPoints(fromT, toT, scale float64) []Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.points) == 0 {
		return nil
	}

	lo := 0
	if !math.IsInf(fromT, -1) {
		i := indexBeforeAt(b.points, fromT)
		if i < 0 {
			lo = 0
		} else if b.points[i].T < fromT {
			lo = i + 1
		} else {
			lo = i
		}
	}

	hi := len(b.points) - 1
	if !math.IsInf(toT, 1) {
		i := indexBeforeAt(b.points, toT)
		if i < 0 {
			return nil
		}
		hi = i
	}

	if lo > hi || lo >= len(b.points) {
		return nil
	}

	out := make([]Point, 0, hi-lo+1)
	for _, p := range b.points[lo : hi+1] {
		out = append(out, Point{T: p.T, Y: p.Y * scale})
	}
	return out
}

// PlotPointsDecimated returns at most n points evenly spaced over
// [fromT, toT] (clamped to the buffer's own bounds), each obtained by
// linear interpolation between the surrounding samples; boundary values
// are held when the requested time lies outside the buffer. Returns nil
// when the clamped range is empty.
func (b *Buffer) PlotPointsDecimated(fromT, toT float64, n int, scale float64) []Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.points) == 0 || n <= 0 {
		return nil
	}

	lo, hi := b.points[0].T, b.points[len(b.points)-1].T
	from, to := fromT, toT
	if math.IsInf(from, -1) || from < lo {
		from = lo
	}
	if math.IsInf(to, 1) || to > hi {
		to = hi
	}
	if from > to {
		return nil
	}

	out := make([]Point, 0, n)
	if n == 1 {
		out = append(out, Point{T: from, Y: b.interpolate(from) * scale})
		return out
	}
	step := (to - from) / float64(n-1)
	for i := 0; i < n; i++ {
		t := from + step*float64(i)
		out = append(out, Point{T: t, Y: b.interpolate(t) * scale})
	}
	return out
}

// interpolate returns the linearly interpolated Y value at t, holding the
// boundary sample's Y when t falls outside the buffer. Caller must hold
// the read lock and b.points must be non-empty.
func (b *Buffer) interpolate(t float64) float64 {
	i := indexBeforeAt(b.points, t)
	if i < 0 {
		return b.points[0].Y
	}
	if i == len(b.points)-1 {
		return b.points[i].Y
	}
	p0, p1 := b.points[i], b.points[i+1]
	if p1.T == p0.T {
		return p0.Y
	}
	frac := (t - p0.T) / (p1.T - p0.T)
	return p0.Y + frac*(p1.Y-p0.Y)
}

// Truncate drops every point whose T <= (last T - keepSeconds); a point
// lying exactly on the cutoff is dropped too. No-op on an empty buffer.
func (b *Buffer) Truncate(keepSeconds float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.points) == 0 {
		return
	}
	cutoff := b.points[len(b.points)-1].T - keepSeconds
	i := 0
	for i < len(b.points) && b.points[i].T <= cutoff {
		i++
	}
	if i == 0 {
		return
	}
	remaining := make([]Point, len(b.points)-i)
	copy(remaining, b.points[i:])
	b.points = remaining
}

// MemoryFootprint returns the bytes currently used by the point slice and
// its allocated capacity.
func (b *Buffer) MemoryFootprint() (used, capacity int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	const pointSize = int64(16) // two float64s
	return int64(len(b.points)) * pointSize, int64(cap(b.points)) * pointSize
}

// Quantile returns the live tdigest's estimate of the q-th quantile (q in
// [0, 1]) of all Y values ever pushed. This is a diagnostic side channel
// for the status API; it does not reflect Truncate() and is not part of
// the buffer's correctness surface.
func (b *Buffer) Quantile(q float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.digest == nil {
		return math.NaN()
	}
	return b.digest.Quantile(q)
}

// Count returns the number of values folded into the live digest.
func (b *Buffer) Count() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.digest == nil {
		return 0
	}
	return b.digest.Count()
}
