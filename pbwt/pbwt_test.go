package pbwt

import (
	"testing"

	"github.com/exascience/refphase/codedsteps"
)

// syntheticSteps builds a Steps value directly from a per-haplotype,
// per-step symbol matrix, bypassing codedsteps.Build so the PBWT
// correctness property can be checked against known input.
func syntheticSteps(symbols [][]int32, alphabet int32) *codedsteps.Steps {
	nSteps := len(symbols)
	starts := make([]int, nSteps)
	for k := range starts {
		starts[k] = k
	}
	nseq := make([]int32, nSteps)
	for k := range nseq {
		nseq[k] = alphabet
	}
	return &codedsteps.Steps{Starts: starts, HapToSeq: symbols, NSeq: nseq}
}

func TestPBWTDivergenceAgreement(t *testing.T) {
	// 6 haplotypes, 5 steps, alphabet {0,1,2}.
	symbols := [][]int32{
		{0, 1, 0, 1, 0, 1},
		{0, 1, 1, 0, 0, 1},
		{1, 0, 1, 1, 0, 0},
		{0, 0, 1, 1, 1, 0},
		{1, 1, 0, 0, 1, 1},
	}
	steps := syntheticSteps(symbols, 3)
	sw := Build(steps, 6)

	nSteps := len(symbols)
	for k := 0; k < nSteps; k++ {
		a := sw.A[k]
		d := sw.D[k]
		for i := 1; i < len(a); i++ {
			lo := int(d[i])
			if lo > k {
				continue // no match asserted at this step
			}
			for j := lo; j <= k; j++ {
				if symbols[j][a[i-1]] != symbols[j][a[i]] {
					t.Errorf("step %d rank %d: haplotypes %d,%d disagree at step %d within claimed match [%d,%d]",
						k, i, a[i-1], a[i], j, lo, k)
				}
			}
		}
	}
}
