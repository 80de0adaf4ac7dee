package hmm

import (
	"math"
	"sync/atomic"
)

// regressSnapshot is an immutable accumulator state, published via
// atomic.Value swaps so concurrent Add calls never take a lock.
type regressSnapshot struct {
	n              int64
	sx, sy, sxx, sxy float64
}

// RecombAccumulator accumulates (genDist, y) samples from the
// recombination-factor regression across worker
// threads.
type RecombAccumulator struct {
	v atomic.Value
}

// NewRecombAccumulator returns an empty accumulator.
func NewRecombAccumulator() *RecombAccumulator {
	a := &RecombAccumulator{}
	a.v.Store(regressSnapshot{})
	return a
}

// Add records one (x, y) sample.
func (a *RecombAccumulator) Add(x, y float64) {
	for {
		old := a.v.Load().(regressSnapshot)
		next := regressSnapshot{
			n:   old.n + 1,
			sx:  old.sx + x,
			sy:  old.sy + y,
			sxx: old.sxx + x*x,
			sxy: old.sxy + x*y,
		}
		if a.v.CompareAndSwap(old, next) {
			return
		}
	}
}

// N returns the number of samples recorded so far.
func (a *RecombAccumulator) N() int64 { return a.v.Load().(regressSnapshot).n }

// SumY returns the running sum of y. The phase driver does not call
// it.
func (a *RecombAccumulator) SumY() float64 { return a.v.Load().(regressSnapshot).sy }

// Merge combines two disjoint accumulators' snapshots into a new one.
func Merge(a, b *RecombAccumulator) *RecombAccumulator {
	x := a.v.Load().(regressSnapshot)
	y := b.v.Load().(regressSnapshot)
	out := NewRecombAccumulator()
	out.v.Store(regressSnapshot{
		n:   x.n + y.n,
		sx:  x.sx + y.sx,
		sy:  x.sy + y.sy,
		sxx: x.sxx + y.sxx,
		sxy: x.sxy + y.sxy,
	})
	return out
}

// Beta returns the closed-form OLS slope beta = (n*Sxy - Sx*Sy) /
// (n*Sxx - Sx^2), or (0, false) if the denominator is zero or the
// sample count is too small.
func (a *RecombAccumulator) Beta() (float64, bool) {
	s := a.v.Load().(regressSnapshot)
	if s.n < 2 {
		return 0, false
	}
	n := float64(s.n)
	denom := n*s.sxx - s.sx*s.sx
	if denom == 0 {
		return 0, false
	}
	beta := (n*s.sxy - s.sx*s.sy) / denom
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0, false
	}
	return beta, true
}

// HFactor returns nStates/(nStates-1), the correction factor applied
// to each regression sample's y value.
func HFactor(nStates int) float64 {
	if nStates <= 1 {
		return 1
	}
	return float64(nStates) / float64(nStates-1)
}
