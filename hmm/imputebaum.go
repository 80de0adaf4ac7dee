package hmm

// LowFreqLookup resolves, for a composite state k anchored at
// high-frequency marker a, the allele(s) the underlying reference
// haplotype carries at a low-frequency marker m.
type LowFreqLookup func(k int, aHiFreq, m int) int32

// ImputeResult is the outcome of one stage-2 Impute-Baum pass for a
// single target haplotype. Both fields index into the caller's
// lowFreqMarkers slice, the same local index space markerAt converts
// to full marker indices from.
type ImputeResult struct {
	Alleles   []int32 // one per low-frequency marker
	Uncertain []int   // local indices whose allele needs second-pass resolution
}

// PosteriorAt computes the forward-backward posterior state
// probabilities at every high-frequency marker for one target
// haplotype, via linear-rescaled forward/backward over the full
// hi-frequency marker range.
func PosteriorAt(states States, pRecomb []float32, emissionAt func(m int) []float32) [][]float32 {
	nMarkers := len(pRecomb)
	nStates := states.NStates(0)
	fwd := uniform(nStates)
	fwds := make([][]float32, nMarkers)
	for m := 0; m < nMarkers; m++ {
		if m > 0 {
			ForwardStep(fwd, emissionAt(m), pRecomb[m])
		}
		fwds[m] = append([]float32{}, fwd...)
	}

	bwd := uniform(nStates)
	posterior := make([][]float32, nMarkers)
	for m := nMarkers - 1; m >= 0; m-- {
		p := make([]float32, nStates)
		var sum float32
		for k := 0; k < nStates; k++ {
			p[k] = fwds[m][k] * bwd[k]
			sum += p[k]
		}
		if sum > 0 {
			for k := range p {
				p[k] /= sum
			}
		}
		posterior[m] = p
		if m > 0 {
			BackwardStep(bwd, emissionAt(m), pRecomb[m])
		}
	}
	return posterior
}

// ImputeLowFreq computes, for each low-frequency marker enclosed
// between high-frequency markers a (below) and b (above), the
// posterior-weighted allele choice. Only the slot-to-haplotype
// assignment at the lower bound a is looked up, giving the allele(s)
// of the reference haplotype referenced by slot k at hi-frequency
// marker a; the upper bound b contributes only through the posterior
// mixing weight.
//
// lowFreqMarkers[i] full-marker index is markerAt(i); its enclosing
// hi-frequency marker's local index is hiA[i], with weight w[i]
// toward it (w=1 exactly at a hi-freq marker).
//
// boostAllele, if non-nil, supplies for marker i the allele carried by
// the low-frequency best-match finder's partner haplotype, or -1 if none qualified; it is folded in as one extra
// average-weight vote alongside the composite-slot buckets.
func ImputeLowFreq(posteriorA, posteriorB [][]float32, weights []float64, lookupA LowFreqLookup, targetAllele1, targetAllele2 func(i int) int32, hiA []int, markerAt func(i int) int, boostAllele func(i int) int32) *ImputeResult {
	n := len(weights)
	res := &ImputeResult{Alleles: make([]int32, n)}
	for i := 0; i < n; i++ {
		w := weights[i]
		pa := posteriorA[i]
		pb := posteriorB[i]
		buckets := make(map[int32]float64)
		var unknownMass float64
		g1, g2 := targetAllele1(i), targetAllele2(i)
		for k := range pa {
			pk := w*float64(pa[k]) + (1-w)*float64(pb[k])
			a := lookupA(k, hiA[i], markerAt(i))
			switch {
			case a == g1 || a == g2:
				buckets[a] += pk
			default:
				unknownMass += pk
			}
		}
		if boostAllele != nil && len(pa) > 0 {
			if a := boostAllele(i); a == g1 || a == g2 {
				buckets[a] += 1.0 / float64(len(pa))
			}
		}
		var best int32
		var bestMass float64 = -1
		for a, mass := range buckets {
			if mass > bestMass {
				bestMass, best = mass, a
			}
		}
		res.Alleles[i] = best
		if unknownMass > bestMass {
			res.Uncertain = append(res.Uncertain, i)
		}
	}
	return res
}

// ResecondPass re-scores every marker listed in Uncertain against the
// final phased panel: it replaces the allele with the one that occurs
// most often among finalAlleleAt's alleles at that marker (ties broken
// arbitrarily), and keeps the current allele when that list is empty.
// Posterior probabilities are not consulted. markerAt converts an
// Uncertain entry's local index into the full marker index
// finalAlleleAt expects.
func ResecondPass(res *ImputeResult, markerAt func(i int) int, finalAlleleAt func(marker int) []int32) {
	for _, i := range res.Uncertain {
		counts := make(map[int32]int)
		for _, a := range finalAlleleAt(markerAt(i)) {
			counts[a]++
		}
		var best int32 = res.Alleles[i]
		var bestCount = -1
		for a, c := range counts {
			if c > bestCount {
				bestCount, best = c, a
			}
		}
		res.Alleles[i] = best
	}
}
