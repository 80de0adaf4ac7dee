package phase

import (
	"math/rand"

	"github.com/exascience/pargo/parallel"

	"github.com/exascience/refphase/codedsteps"
	"github.com/exascience/refphase/compstate"
	"github.com/exascience/refphase/fixedphase"
	"github.com/exascience/refphase/genotype"
	"github.com/exascience/refphase/hmm"
	"github.com/exascience/refphase/ibs2"
	"github.com/exascience/refphase/internal"
	"github.com/exascience/refphase/lowfreq"
	"github.com/exascience/refphase/pbwt"
)

// Params holds the CLI-tunable phasing parameters.
type Params struct {
	Burnin      int
	Iterations  int
	PhaseStates int
	PhaseStepCM float64
	ScaleFactor float64
	Rare        float64
	Ne          float64
	Err         float32 // 0 means "use the Li-Stephens default"
	Seed        int64
	BufferCM    float64 // reserved for a future batched PBWT sweep; RunWindow does not read it
	IBS2MinCM   float64

	// ImpStepCM and ImpNSteps drive the low-frequency best-match
	// finder's own coded-step partition of the full marker space,
	// separate from the hi-frequency PhaseStepCM partition stage-1
	// phasing runs over.
	ImpStepCM float64
	ImpNSteps int
}

// Result is the final phased output for one window, covering every
// marker (high- and low-frequency alike) for every target sample.
type Result struct {
	H1, H2 [][]int32 // per sample, one allele per marker of the window
}

// stateAdapter presents one target haplotype's per-iteration
// composite states as hmm.States, backed by a compstate.Builder's
// finalized segments and an allele lookup over the hi-frequency
// marker space the phasing HMM runs in.
type stateAdapter struct {
	segs     [][]compstate.Segment
	alleleOf func(hap int32, m int) int32
}

func (s *stateAdapter) NStates(m int) int { return len(s.segs) }
func (s *stateAdapter) Allele(m, k int) int32 {
	return compstate.Allele(s.segs[k], m, s.alleleOf)
}

// hapAt returns the haplotype occupying composite slot segs at local
// hi-frequency marker m, the same segment scan compstate.Allele does
// but returning the haplotype id instead of resolving its allele —
// used by the impute stage to re-anchor a slot onto the full marker
// space.
func hapAt(segs []compstate.Segment, m int) int32 {
	for _, seg := range segs {
		if m < seg.Splice {
			return seg.Hap
		}
	}
	return -1
}

// buildStates runs the PBWT neighbour search, in both the forward and
// backward sweep, across all coded steps for both haplotypes of
// sample s and folds the resulting candidates into one shared bounded
// composite-state builder: one composite reference panel backs the
// phasing decision between a sample's two haplotypes, which only
// differ in which emission sequence is run against it. Running both
// sweeps means a step's candidates include haplotypes whose match
// with the target starts before the step (found by fwd) as well as
// ones whose match only starts after it (found by bwd).
func buildStates(fwd, bwd *pbwt.Sweep, steps *codedsteps.Steps, s int, h2s0, h2s1 int32, hapSample func(int32) int, ibs2Table *ibs2.Table, maxCandidates, iLength int, rng *rand.Rand, nMarkers, totalHaps int, alleleOf func(hap int32, m int) int32, minSteps int) *stateAdapter {
	builder := compstate.New(maxCandidates, minSteps, func(step int) int { return steps.Starts[step] })
	for k := 0; k < steps.NSteps(); k++ {
		start := steps.Starts[k]
		end := steps.End(k, nMarkers)
		for _, h := range []int32{h2s0, h2s1} {
			for _, sw := range [2]*pbwt.Sweep{fwd, bwd} {
				cands := sw.Neighbors(k, h, s, func(hh int32) int { return hapSample(hh) }, ibs2Table, start, end-1, maxCandidates, iLength, rng)
				for _, c := range cands {
					builder.Observe(c, k)
				}
			}
		}
	}
	segs := builder.Finalize(nMarkers)
	if len(segs) == 0 {
		segs = compstate.FillRandom(totalHaps, maxCandidates, h2s0, nMarkers, rng)
	}
	if len(segs) == 0 {
		internal.Invariant("empty-composite-queue", "no composite reference states available for haplotype %d (totalHaps=%d)", h2s0, totalHaps)
	}
	return &stateAdapter{segs: segs, alleleOf: alleleOf}
}

// pRecombOver builds the per-marker recombination probability array
// for a marker subsequence given by idx (local index -> full marker
// index, or nil for "every marker"), from the window's real genetic
// positions: pRecomb[m] = 1 - exp(-recombFactor * genDist(m, m-1)).
func pRecombOver(cm []float64, idx []int, n int, recombFactor float64) []float32 {
	at := func(i int) float64 {
		if idx == nil {
			return cm[i]
		}
		return cm[idx[i]]
	}
	out := make([]float32, n)
	for i := 1; i < n; i++ {
		d := at(i) - at(i-1)
		if d < 0 {
			d = 0
		}
		out[i] = hmm.PRecomb(recombFactor, d)
	}
	return out
}

// RunWindow executes the burn-in + iteration loop for one window
// over the high-frequency marker subset, then, if
// that subset is a strict subset of the window, runs the stage-2
// Impute-Baum pass to produce phased alleles at every marker.
//
// Stage-2 reuses stage-1's composite-reference slots for the
// forward-backward posterior, but builds its own full-marker-space
// coded steps at ImpStepCM to drive the low-frequency best-match
// finder, whose picks are folded in as a supplementary
// vote alongside the regular slot posteriors. ImpStates, ImpSegment
// and ClusterCM are accepted CLI parameters with no separate pipeline
// to size in this design; see DESIGN.md.
func RunWindow(fpd *fixedphase.Data, refGT genotype.GT, params Params) *Result {
	nSamples := fpd.GT.NSamples()
	nMarkers := fpd.GT.NMarkers()
	nHi := fpd.HiFreqGT.NMarkers()

	pErr := params.Err
	if pErr == 0 {
		pErr = hmm.DefaultPErr(fpd.GT.NHaps())
	}

	alleleFreqSampler := func(m int, rng *rand.Rand) int32 {
		// Draw the allele of a random non-missing haplotype, so each
		// allele comes up in proportion to its frequency at m.
		nHaps := fpd.HiFreqGT.NHaps()
		for try := 0; try < nHaps; try++ {
			if a := fpd.HiFreqGT.Allele(m, rng.Intn(nHaps)); a >= 0 {
				return a
			}
		}
		nAlleles := fpd.HiFreqGT.Markers().At(m).NAlleles()
		return int32(rng.Intn(nAlleles))
	}
	ep := New(nSamples, nHi, fpd.HiFreqGT.Allele1, fpd.HiFreqGT.Allele2, alleleFreqSampler, params.Seed)

	rng := rand.New(rand.NewSource(params.Seed))
	hiCMAt := func(m int) float64 {
		if fpd.HiFreqMarkers == nil {
			return fpd.CM[m]
		}
		return fpd.CM[fpd.HiFreqMarkers[m]]
	}
	steps := codedsteps.Build(fpd.HiFreqGT, fpd.HiFreqRefGT, hiCMAt, params.PhaseStepCM, params.ScaleFactor, rng)

	nHapsTarget := fpd.HiFreqGT.NHaps()
	totalHaps := nHapsTarget
	if fpd.HiFreqRefGT != nil {
		totalHaps += fpd.HiFreqRefGT.NHaps()
	}
	sweepFwd := pbwt.Build(steps, totalHaps)
	sweepBwd := pbwt.BuildBackward(steps, totalHaps)

	hapSample := func(h int32) int {
		if int(h) < nHapsTarget {
			return int(h) / 2
		}
		return -1 - int(h) // negative sentinel: reference haplotypes have no target sample
	}
	hiAlleleOf := func(h int32, m int) int32 {
		if int(h) < nHapsTarget {
			return fpd.HiFreqGT.Allele(m, int(h))
		}
		return fpd.HiFreqRefGT.Allele(m, int(h)-nHapsTarget)
	}

	recombFactor := 0.04 * params.Ne / float64(fpd.GT.NHaps())
	pRecomb := pRecombOver(fpd.CM, fpd.HiFreqMarkers, nHi, recombFactor)
	regress := hmm.NewRecombAccumulator()

	minSteps := int(200 * params.ScaleFactor)
	if minSteps < 1 {
		minSteps = 1
	}

	finalStates := make([]*stateAdapter, nSamples)

	totalIts := params.Burnin + params.Iterations
	for it := 0; it < totalIts; it++ {
		maxCand := pbwt.MaxCandidates(it, params.Burnin, totalIts)
		itsRemaining := totalIts - it
		last := it == totalIts-1
		regressRound := it == params.Burnin-1 || it == params.Burnin
		parallel.Range(0, nSamples, 0, func(low, high int) {
			for s := low; s < high; s++ {
				sampleRng := rand.New(rand.NewSource(params.Seed + int64(s) + int64(it)*1_000_003))
				h1, h2, unphased := ep.Get(s)
				states := buildStates(sweepFwd, sweepBwd, steps, s, int32(2*s), int32(2*s+1), hapSample, fpd.IBS2, maxCand, 64, sampleRng, nHi, totalHaps, hiAlleleOf, minSteps)
				if last {
					finalStates[s] = states
				}
				pErrs := make([]float32, nHi)
				for m := range pErrs {
					pErrs[m] = pErr
				}
				result := hmm.PhaseBaum1(states, pErrs, pRecomb, h1, h2, unphased, ep.Missing(s), func(ratio float64, rank, total int) bool {
					frac := hmm.PLeaveFraction(total, itsRemaining)
					return float64(rank) < frac*float64(total)
				})
				if regressRound {
					sampleRegression(states, pErrs, pRecomb, h1, regress)
				}
				var newUnphased []int
				for _, m := range unphased {
					if result.Leave[m] {
						newUnphased = append(newUnphased, m)
					}
				}
				ep.Publish(s, result.H1, result.H2, newUnphased)
			}
		})
		if regressRound {
			if beta, ok := regress.Beta(); ok {
				recombFactor = beta
				pRecomb = pRecombOver(fpd.CM, fpd.HiFreqMarkers, nHi, recombFactor)
			}
		}
	}

	res := &Result{H1: make([][]int32, nSamples), H2: make([][]int32, nSamples)}
	if fpd.HiFreqMarkers == nil {
		for s := 0; s < nSamples; s++ {
			h1, h2, _ := ep.Get(s)
			res.H1[s] = append([]int32{}, h1...)
			res.H2[s] = append([]int32{}, h2...)
		}
		return res
	}

	fullAlleleOf := func(h int32, m int) int32 {
		if int(h) < nHapsTarget {
			return fpd.GT.Allele(m, int(h))
		}
		return refGT.Allele(m, int(h)-nHapsTarget)
	}
	impSteps := codedsteps.Build(fpd.GT, fpd.RefGT, func(m int) float64 { return fpd.CM[m] }, params.ImpStepCM, 1.0, rng)
	matches := lowfreq.Build(fpd.Carriers, impSteps, fpd.GT.NHaps(), hapSample, params.ImpNSteps, rng)

	for s := 0; s < nSamples; s++ {
		h1hi, h2hi, _ := ep.Get(s)
		full1, full2 := imputeSample(fpd, nMarkers, pRecomb, pErr, h1hi, h2hi, finalStates[s], fullAlleleOf, s, impSteps, matches)
		res.H1[s] = full1
		res.H2[s] = full2
	}
	return res
}

// stepOf returns the largest step index k with starts[k] <= m.
func stepOf(starts []int, m int) int {
	lo, hi := 0, len(starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if starts[mid] <= m {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// sampleRegression replays one sample's already-built state set
// through a forward/backward pass and records (genDist, hFactor-scaled
// residual) observations into the shared recombination-factor
// accumulator.
func sampleRegression(states *stateAdapter, pErrs, pRecomb []float32, h []int32, regress *hmm.RecombAccumulator) {
	nMarkers := len(h)
	if nMarkers == 0 {
		return
	}
	nStates := states.NStates(0)
	if nStates < 2 {
		return
	}
	hFactor := hmm.HFactor(nStates)
	fwd := make([]float32, nStates)
	for k := range fwd {
		fwd[k] = 1 / float32(nStates)
	}
	for m := 1; m < nMarkers; m++ {
		em := make([]float32, nStates)
		for k := 0; k < nStates; k++ {
			if states.Allele(m, k) == h[m] {
				em[k] = 1 - pErrs[m]
			} else {
				em[k] = pErrs[m]
			}
		}
		den := hmm.ForwardStep(fwd, em, pRecomb[m])
		if den <= 0 {
			continue
		}
		var partNumer float32
		for k := range fwd {
			partNumer += fwd[k] * fwd[k]
		}
		y := hFactor * float64(den-partNumer) / float64(den)
		regress.Add(float64(pRecomb[m]), y)
	}
}

// imputeSample fills sample s's full-window haplotype pair using the
// stage-1 hi-frequency phasing plus stage-2 Impute-Baum posteriors.
func imputeSample(fpd *fixedphase.Data, nMarkers int, pRecombHi []float32, pErr float32, h1hi, h2hi []int32, states *stateAdapter, fullAlleleOf func(int32, int) int32, sample int, impSteps *codedsteps.Steps, matches *lowfreq.Matches) (full1, full2 []int32) {
	full1 = make([]int32, nMarkers)
	full2 = make([]int32, nMarkers)
	hi := fpd.HiFreqMarkers
	for i, m := range hi {
		full1[m] = h1hi[i]
		full2[m] = h2hi[i]
	}

	emissionFor := func(hAllele []int32) func(i int) []float32 {
		return func(i int) []float32 {
			em := make([]float32, states.NStates(i))
			for k := range em {
				if states.Allele(i, k) == hAllele[i] {
					em[k] = 1 - pErr
				} else {
					em[k] = pErr
				}
			}
			return em
		}
	}
	post1 := hmm.PosteriorAt(states, pRecombHi, emissionFor(h1hi))
	post2 := hmm.PosteriorAt(states, pRecombHi, emissionFor(h2hi))

	var lowFreq []int
	for m := 0; m < nMarkers; m++ {
		if !fpd.IsHiFreq(m) {
			lowFreq = append(lowFreq, m)
		}
	}
	if len(lowFreq) == 0 {
		return
	}

	hiA := make([]int, len(lowFreq))
	weights := make([]float64, len(lowFreq))
	postA1 := make([][]float32, len(lowFreq))
	postB1 := make([][]float32, len(lowFreq))
	postA2 := make([][]float32, len(lowFreq))
	postB2 := make([][]float32, len(lowFreq))
	for i, m := range lowFreq {
		a := fpd.PrevHiFreqMarker[m]
		b := a + 1
		if b >= len(hi) {
			b = a
		}
		hiA[i] = a
		weights[i] = fpd.PrevWt[m]
		postA1[i], postB1[i] = post1[a], post1[b]
		postA2[i], postB2[i] = post2[a], post2[b]
	}
	markerAt := func(i int) int { return lowFreq[i] }

	lookup := func(k, aHiFreq, m int) int32 { return fullAlleleOf(hapAt(states.segs[k], aHiFreq), m) }

	g1 := func(i int) int32 { return fpd.GT.Allele1(lowFreq[i], sample) }
	g2 := func(i int) int32 { return fpd.GT.Allele2(lowFreq[i], sample) }

	boostFor := func(hap int32) func(i int) int32 {
		return func(i int) int32 {
			m := lowFreq[i]
			k := stepOf(impSteps.Starts, m)
			partner := matches.Match[k][hap]
			if partner < 0 {
				return -1
			}
			return fullAlleleOf(partner, m)
		}
	}

	res1 := hmm.ImputeLowFreq(postA1, postB1, weights, lookup, g1, g2, hiA, markerAt, boostFor(int32(2*sample)))
	res2 := hmm.ImputeLowFreq(postA2, postB2, weights, lookup, g1, g2, hiA, markerAt, boostFor(int32(2*sample+1)))

	finalAt := func(m int) []int32 { return []int32{full1[m], full2[m]} }
	hmm.ResecondPass(res1, markerAt, finalAt)
	hmm.ResecondPass(res2, markerAt, finalAt)

	for i, m := range lowFreq {
		full1[m] = res1.Alleles[i]
		full2[m] = res2.Alleles[i]
	}
	return
}
