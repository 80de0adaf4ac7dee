// Package pbwt implements the Durbin positional Burrows-Wheeler
// transform over coded steps: a prefix array and
// divergence array advanced one step at a time, plus the neighbour
// search that feeds candidate reference/target haplotypes to the
// composite reference builder.
package pbwt

import (
	"math/rand"

	"github.com/exascience/refphase/codedsteps"
	"github.com/exascience/refphase/ibs2"
)

// Sweep holds, for every step, the prefix array a and divergence array
// d produced by extending the PBWT one coded step at a time. a[k][i]
// is the haplotype index at PBWT rank i after processing step k;
// d[k][i] is the step index at or after which a[k][i-1] and a[k][i]
// first agree (sentinel = k+1 when they have never matched).
type Sweep struct {
	steps *codedsteps.Steps
	A     [][]int32
	D     [][]int32
}

// Build runs a full forward sweep over every step.
func Build(steps *codedsteps.Steps, nHaps int) *Sweep {
	n := steps.NSteps()
	sw := &Sweep{steps: steps, A: make([][]int32, n), D: make([][]int32, n)}

	a := make([]int32, nHaps)
	for i := range a {
		a[i] = int32(i)
	}
	d := make([]int32, nHaps)

	for k := 0; k < n; k++ {
		sym := steps.HapToSeq[k]
		alphabet := int(steps.NSeq[k]) + 1
		a, d = extendOneStep(a, d, sym, alphabet, int32(k))
		sw.A[k] = append([]int32{}, a...)
		sw.D[k] = append([]int32{}, d...)
	}
	return sw
}

// BuildBackward runs the same recurrence in reverse step order,
// producing at each step k a prefix/divergence array ranked by
// agreement extending toward the end of the step range instead of the
// start. A forward-only sweep only ever finds neighbours whose match
// with the target begins at or before step k; pairing it with
// BuildBackward lets Neighbors also find haplotypes that only start
// agreeing with the target after k, which the forward sweep alone
// cannot see.
func BuildBackward(steps *codedsteps.Steps, nHaps int) *Sweep {
	n := steps.NSteps()
	sw := &Sweep{steps: steps, A: make([][]int32, n), D: make([][]int32, n)}

	a := make([]int32, nHaps)
	for i := range a {
		a[i] = int32(i)
	}
	d := make([]int32, nHaps)

	for k := n - 1; k >= 0; k-- {
		sym := steps.HapToSeq[k]
		alphabet := int(steps.NSeq[k]) + 1
		a, d = extendOneStep(a, d, sym, alphabet, int32(n-1-k))
		sw.A[k] = append([]int32{}, a...)
		sw.D[k] = append([]int32{}, d...)
	}
	return sw
}

// extendOneStep advances the prefix/divergence arrays by one coded
// step, generalizing Durbin's binary-alphabet recurrence to the
// per-step sequence-id alphabet produced by codedsteps.Build.
func extendOneStep(a, d []int32, sym []int32, alphabet int, k int32) ([]int32, []int32) {
	n := len(a)
	buckets := make([][]int32, alphabet)
	bucketDiv := make([][]int32, alphabet)
	p := make([]int32, alphabet)
	for v := range p {
		p[v] = k + 1
	}
	for i := 0; i < n; i++ {
		for v2 := 0; v2 < alphabet; v2++ {
			if d[i] > p[v2] {
				p[v2] = d[i]
			}
		}
		h := a[i]
		v := sym[h]
		buckets[v] = append(buckets[v], h)
		bucketDiv[v] = append(bucketDiv[v], p[v])
		p[v] = 0
	}
	aNew := make([]int32, 0, n)
	dNew := make([]int32, 0, n)
	for v := 0; v < alphabet; v++ {
		aNew = append(aNew, buckets[v]...)
		dNew = append(dNew, bucketDiv[v]...)
	}
	return aNew, dNew
}

// rankOf finds the PBWT rank of haplotype h at step k by linear scan.
// Callers that need many lookups at the same step should build their
// own inverse map; this is only used for the per-target neighbour
// search, once per (target haplotype, step).
func (sw *Sweep) rankOf(k int, h int32) int {
	for i, v := range sw.A[k] {
		if v == h {
			return i
		}
	}
	return -1
}

// Neighbors returns up to maxCandidates distinct-sample haplotype
// indices from a window around target haplotype h's PBWT rank at
// step k, excluding haplotypes IBS2 with h's sample across the step.
// isIBS2 is evaluated at the step's first and last marker (the
// "either endpoint of the step" check).
func (sw *Sweep) Neighbors(k int, h int32, targetSample int, hapSample func(int32) int, table *ibs2.Table, stepStart, stepEnd int, maxCandidates, iLength int, rng *rand.Rand) []int32 {
	a := sw.A[k]
	d := sw.D[k]
	n := len(a)
	i := sw.rankOf(k, h)
	if i < 0 {
		return nil
	}
	u, v := i, i+1 // half-open window [u, v), i itself sits at u when window has size 1

	for v-u < maxCandidates {
		uLive := u > 0
		vLive := v < n
		if !uLive && !vLive {
			break
		}
		// "closer to step" taken as larger divergence value, i.e. the
		// shorter / more recently started match; that bound is
		// advanced first.
		growLeft := uLive && (!vLive || d[u] >= d[v])
		if growLeft {
			u--
		} else {
			v++
		}
		if u == 0 && v == n {
			break
		}
	}

	candidates := make([]int32, 0, v-u-1)
	for idx := u; idx < v; idx++ {
		if idx == i {
			continue
		}
		candidates = append(candidates, a[idx])
	}
	if len(candidates) == 0 {
		return nil
	}

	start := rng.Intn(len(candidates))
	var picked []int32
	for scan := 0; scan < iLength && scan < len(candidates); scan++ {
		c := candidates[(start+scan)%len(candidates)]
		s := hapSample(c)
		if s == targetSample {
			continue
		}
		if table != nil && (table.AreIBS2(targetSample, s, stepStart) || table.AreIBS2(targetSample, s, stepEnd)) {
			continue
		}
		picked = append(picked, c)
		if len(picked) == maxCandidates {
			break
		}
	}
	return picked
}

const (
	burninCandidates   = 100
	maxPhaseCandidates = 90
	minPhaseCandidates = 5
)

// MaxCandidates anneals the candidate window size from
// BURNIN_CANDIDATES during burn-in to MAX_PHASE_CANDIDATES right after
// burn-in ends, decaying linearly to MIN_PHASE_CANDIDATES by the last
// iteration.
func MaxCandidates(iteration, burnin, totalIterations int) int {
	if iteration < burnin {
		return burninCandidates
	}
	post := iteration - burnin
	postTotal := totalIterations - burnin
	if postTotal <= 1 {
		return minPhaseCandidates
	}
	frac := float64(post) / float64(postTotal-1)
	return maxPhaseCandidates - int(frac*float64(maxPhaseCandidates-minPhaseCandidates))
}
