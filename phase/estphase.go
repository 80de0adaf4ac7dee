// Package phase implements the mutable per-window phasing state
// and the window driver that iterates burn-in
// and phasing rounds over it. Splicing adjacent windows' output is
// done by the cmd package.
package phase

import (
	"math/rand"
	"sync/atomic"
)

// sampleState is one target sample's current phasing snapshot,
// published as a whole immutable value.
type sampleState struct {
	h1, h2   []int32
	unphased []int // strictly increasing marker indices
}

// EstPhase holds the mutable working state for every target sample in
// the current window. Missing-marker lists are immutable after
// construction; only h1/h2/unphased are ever replaced,
// and only as whole-value swaps.
type EstPhase struct {
	states  []atomic.Value // holds *sampleState
	missing [][]int        // per sample, immutable
}

// New builds an EstPhase for nSamples samples over a window of
// nMarkers markers, seeding haplotypes from the unphased genotype
// calls: heterozygotes are randomly ordered, missing sites are filled
// by allele-frequency sampling, both deterministically from seed.
func New(nSamples, nMarkers int, allele1, allele2 func(m, s int) int32, alleleFreqSampler func(m int, rng *rand.Rand) int32, seed int64) *EstPhase {
	ep := &EstPhase{states: make([]atomic.Value, nSamples), missing: make([][]int, nSamples)}
	for s := 0; s < nSamples; s++ {
		rng := rand.New(rand.NewSource(seed + int64(s)))
		h1 := make([]int32, nMarkers)
		h2 := make([]int32, nMarkers)
		var unphased []int
		var miss []int
		for m := 0; m < nMarkers; m++ {
			a1, a2 := allele1(m, s), allele2(m, s)
			switch {
			case a1 < 0 || a2 < 0:
				miss = append(miss, m)
				a := alleleFreqSampler(m, rng)
				h1[m], h2[m] = a, a
			case a1 == a2:
				h1[m], h2[m] = a1, a2
			default:
				if rng.Intn(2) == 0 {
					h1[m], h2[m] = a1, a2
				} else {
					h1[m], h2[m] = a2, a1
				}
				unphased = append(unphased, m)
			}
		}
		ep.states[s].Store(&sampleState{h1: h1, h2: h2, unphased: unphased})
		ep.missing[s] = miss
	}
	return ep
}

// Get returns a snapshot of sample s's current state. The returned
// slices must be treated as read-only.
func (ep *EstPhase) Get(s int) (h1, h2 []int32, unphased []int) {
	st := ep.states[s].Load().(*sampleState)
	return st.h1, st.h2, st.unphased
}

// Missing returns the immutable list of missing-genotype marker
// indices for sample s.
func (ep *EstPhase) Missing(s int) []int { return ep.missing[s] }

// Publish atomically replaces sample s's state. newUnphased must be a
// subset of the previous unphased list.
func (ep *EstPhase) Publish(s int, h1, h2 []int32, newUnphased []int) {
	ep.states[s].Store(&sampleState{h1: h1, h2: h2, unphased: newUnphased})
}

// NSamples returns the number of target samples.
func (ep *EstPhase) NSamples() int { return len(ep.states) }
