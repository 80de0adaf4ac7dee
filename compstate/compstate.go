// Package compstate implements the composite reference haplotype
// builder: a greedy, bounded-size priority queue that
// turns a stream of (reference haplotype, step) events from the PBWT
// neighbour finder into at most maxStates composite reference
// haplotypes, each a mosaic of real reference haplotype segments
// joined at step midpoints.
//
// There is no priority queue among the example repos to ground this
// on; container/heap is the standard library's priority queue and is
// the natural fit for a bounded min-heap keyed by "latest step" with
// key-update-via-remove-reinsert, so it is used directly rather than hand-rolled.
package compstate

import (
	"container/heap"
	"math/rand"
)

// Segment is one mosaic piece of a composite slot: haplotype Hap was
// this slot's current occupant from the step it was installed through
// step Step, after which the slot spliced at marker index Splice.
type Segment struct {
	Hap    int32
	Step   int
	Splice int // marker index; the trailing segment, added by Finalize, ends at nMarkers
}

type slot struct {
	currentHap int32
	latestStep int
	segments   []Segment
	index      int // heap index, maintained by heap.Interface
}

// slotHeap is a min-heap of *slot ordered by latestStep.
type slotHeap []*slot

func (h slotHeap) Len() int            { return len(h) }
func (h slotHeap) Less(i, j int) bool  { return h[i].latestStep < h[j].latestStep }
func (h slotHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *slotHeap) Push(x interface{}) {
	s := x.(*slot)
	s.index = len(*h)
	*h = append(*h, s)
}
func (h *slotHeap) Pop() interface{} {
	old := *h
	n := len(old)
	s := old[n-1]
	*h = old[:n-1]
	return s
}

// Builder accumulates composite slots for one target haplotype.
type Builder struct {
	maxStates int
	minSteps  int
	slots     []*slot
	byHap     map[int32]int // hap -> index into slots (not heap position)
	pq        slotHeap
	stepStart func(step int) int
}

// New creates a Builder. minSteps is the scaleFactor-dependent eviction
// threshold (int(200·scaleFactor) in the phase driver); stepStart maps a step
// index to its first marker index, used to compute splice points.
func New(maxStates, minSteps int, stepStart func(step int) int) *Builder {
	return &Builder{
		maxStates: maxStates,
		minSteps:  minSteps,
		byHap:     make(map[int32]int),
		stepStart: stepStart,
	}
}

// Observe processes one (haplotype, step) event from the PBWT
// neighbour stream.
func (b *Builder) Observe(hap int32, step int) {
	if idx, ok := b.byHap[hap]; ok {
		s := b.slots[idx]
		s.latestStep = step
		heap.Fix(&b.pq, s.index)
		return
	}

	if len(b.slots) < b.maxStates {
		s := &slot{currentHap: hap, latestStep: step}
		b.slots = append(b.slots, s)
		b.byHap[hap] = len(b.slots) - 1
		heap.Push(&b.pq, s)
		return
	}

	oldest := b.pq[0]
	if step-oldest.latestStep < b.minSteps {
		return // queue full, nothing old enough to evict: drop the event
	}
	spliceMarker := b.stepStart((oldest.latestStep + step) / 2)
	oldest.segments = append(oldest.segments, Segment{Hap: oldest.currentHap, Step: oldest.latestStep, Splice: spliceMarker})
	delete(b.byHap, oldest.currentHap)
	oldest.currentHap = hap
	oldest.latestStep = step
	heap.Fix(&b.pq, oldest.index)
	for i, s := range b.slots {
		if s == oldest {
			b.byHap[hap] = i
			break
		}
	}
}

// NStates returns the current number of occupied composite slots.
func (b *Builder) NStates() int { return len(b.slots) }

// Finalize closes every slot's trailing segment at nMarkers, so every
// slot's segment list becomes contiguous over [0, nMarkers).
func (b *Builder) Finalize(nMarkers int) [][]Segment {
	out := make([][]Segment, len(b.slots))
	for i, s := range b.slots {
		segs := append([]Segment{}, s.segments...)
		segs = append(segs, Segment{Hap: s.currentHap, Step: s.latestStep, Splice: nMarkers})
		out[i] = segs
	}
	return out
}

// FillRandom produces fallback composite slots when the PBWT neighbour
// stream never yielded a single candidate.8 "extreme
// edge case": min(nHaps-2, maxStates) random non-self haplotypes, each
// spanning the whole window.
func FillRandom(nHaps int, maxStates int, self int32, nMarkers int, rng *rand.Rand) [][]Segment {
	n := nHaps - 2
	if n > maxStates {
		n = maxStates
	}
	if n < 0 {
		n = 0
	}
	seen := make(map[int32]bool, n)
	out := make([][]Segment, 0, n)
	for len(out) < n {
		h := int32(rng.Intn(nHaps))
		if h == self || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, []Segment{{Hap: h, Step: 0, Splice: nMarkers}})
	}
	return out
}

// Allele looks up the allele carried by composite slot segs at marker
// m, given a function resolving (haplotype, marker) to allele, by
// finding the segment whose splice bound contains m.
func Allele(segs []Segment, m int, alleleOf func(hap int32, m int) int32) int32 {
	for _, seg := range segs {
		if m < seg.Splice {
			return alleleOf(seg.Hap, m)
		}
	}
	return -1
}
