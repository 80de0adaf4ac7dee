package hmm

import "testing"

func TestImputeLowFreqPicksMajorityBucket(t *testing.T) {
	// Three slots at the one low-frequency marker under test: two vote
	// allele 1, one votes allele 0; target is het 0/1, so both are
	// observable and the majority should win.
	postA := [][]float32{{0.2, 0.4, 0.4}}
	postB := postA
	weights := []float64{1.0}
	lookup := func(k, a, m int) int32 { return []int32{0, 1, 1}[k] }
	g1 := func(i int) int32 { return 0 }
	g2 := func(i int) int32 { return 1 }
	hiA := []int{0}
	markerAt := func(i int) int { return i }

	res := ImputeLowFreq(postA, postB, weights, lookup, g1, g2, hiA, markerAt, nil)
	if res.Alleles[0] != 1 {
		t.Errorf("got allele %d, want 1 (majority bucket)", res.Alleles[0])
	}
}

func TestImputeLowFreqBoostTipsATie(t *testing.T) {
	postA := [][]float32{{0.5, 0.5}}
	postB := postA
	weights := []float64{1.0}
	lookup := func(k, a, m int) int32 { return []int32{0, 1}[k] }
	g1 := func(i int) int32 { return 0 }
	g2 := func(i int) int32 { return 1 }
	hiA := []int{0}
	markerAt := func(i int) int { return i }
	boost := func(i int) int32 { return 1 }

	res := ImputeLowFreq(postA, postB, weights, lookup, g1, g2, hiA, markerAt, boost)
	if res.Alleles[0] != 1 {
		t.Errorf("got allele %d, want 1 (boosted bucket breaks the tie)", res.Alleles[0])
	}
}

func TestImputeLowFreqUnknownMassMarksUncertain(t *testing.T) {
	postA := [][]float32{{0.9, 0.1}}
	postB := postA
	weights := []float64{1.0}
	// Slot 0's reference allele (2) is neither of the target's two
	// unphased alleles, so its mass goes to "unknown".
	lookup := func(k, a, m int) int32 { return []int32{2, 0}[k] }
	g1 := func(i int) int32 { return 0 }
	g2 := func(i int) int32 { return 1 }
	hiA := []int{0}
	markerAt := func(i int) int { return i }

	res := ImputeLowFreq(postA, postB, weights, lookup, g1, g2, hiA, markerAt, nil)
	if len(res.Uncertain) != 1 || res.Uncertain[0] != 0 {
		t.Errorf("got Uncertain=%v, want [0]", res.Uncertain)
	}
}
