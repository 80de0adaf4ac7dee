package lowfreq

import (
	"math/rand"
	"testing"

	"github.com/exascience/refphase/codedsteps"
	"github.com/exascience/refphase/fixedphase"
)

func sampleOf(h int32) int { return int(h) / 2 }

func TestBuildAssignsDistinctSamplePartners(t *testing.T) {
	// Two steps, four target haplotypes (samples 0,1), carriers at the
	// single marker of step 0 shared by haplotypes 0 and 2 (distinct
	// samples, so the list survives refinement and assignment).
	steps := &codedsteps.Steps{
		Starts:   []int{0, 1},
		HapToSeq: [][]int32{{1, 1, 1, 1}, {1, 2, 1, 2}},
		NSeq:     []int32{2, 3},
	}
	carriers := []fixedphase.Carriers{
		{HighFreq: []bool{false, false}, List: [][]int{nil, {0, 2}}},
		{HighFreq: []bool{true, true}, List: [][]int{nil, nil}},
	}

	m := Build(carriers, steps, 4, sampleOf, 1, rand.New(rand.NewSource(1)))
	if len(m.Match) != 2 {
		t.Fatalf("got %d step results, want 2", len(m.Match))
	}
	if m.Match[0][0] == -1 {
		t.Fatalf("hap 0 should have matched a partner in step 0")
	}
	if sampleOf(m.Match[0][0]) == sampleOf(0) {
		t.Errorf("matched partner %d is the same sample as hap 0", m.Match[0][0])
	}
}

func TestBuildDropsSameSampleOnlyLists(t *testing.T) {
	// Both carriers of the rare allele belong to sample 0 (haps 0,1):
	// the list must not survive, since assignMatches requires a
	// different-sample partner.
	steps := &codedsteps.Steps{
		Starts:   []int{0},
		HapToSeq: [][]int32{{1, 1, 1, 1}},
		NSeq:     []int32{2},
	}
	carriers := []fixedphase.Carriers{
		{HighFreq: []bool{false, false}, List: [][]int{nil, {0, 1}}},
	}
	m := Build(carriers, steps, 4, sampleOf, 1, rand.New(rand.NewSource(2)))
	for h, partner := range m.Match[0] {
		if partner != -1 {
			t.Errorf("hap %d got partner %d, want none (single-sample carrier list)", h, partner)
		}
	}
}

func TestRefineSplitsByFollowingSteps(t *testing.T) {
	// Haps 0 (sample 0) and 2 (sample 1) share the rare allele but
	// diverge at the next coded step: refine must split them apart,
	// leaving no surviving multi-sample sublist.
	steps := &codedsteps.Steps{
		Starts:   []int{0, 1, 2},
		HapToSeq: [][]int32{{1, 1, 1, 1}, {1, 1, 2, 1}, {1, 1, 1, 1}},
		NSeq:     []int32{2, 3, 2},
	}
	carriers := []fixedphase.Carriers{
		{HighFreq: []bool{false, false}, List: [][]int{nil, {0, 2}}},
		{HighFreq: []bool{true, true}, List: [][]int{nil, nil}},
		{HighFreq: []bool{true, true}, List: [][]int{nil, nil}},
	}
	m := Build(carriers, steps, 4, sampleOf, 1, rand.New(rand.NewSource(3)))
	if m.Match[0][0] != -1 {
		t.Errorf("hap 0 matched %d, want none after refinement split", m.Match[0][0])
	}
}
