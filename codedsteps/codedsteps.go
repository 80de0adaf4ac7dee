// Package codedsteps partitions the high-frequency marker view into
// genetic-distance steps and assigns each haplotype a small integer
// sequence id per step describing its unique allele pattern across
// that step. The PBWT neighbour finder and the
// composite reference builder both operate one step at a time using
// these ids rather than raw allele vectors.
package codedsteps

import (
	"math"
	"math/rand"

	"github.com/exascience/refphase/genotype"
)

const minSteps = 40

// CMFunc maps a high-frequency marker index to its genetic position.
type CMFunc func(m int) float64

// Steps holds step boundaries and per-step haplotype sequence ids.
type Steps struct {
	Starts   []int // step k covers markers [Starts[k], end), end = Starts[k+1] or nMarkers
	HapToSeq [][]int32
	NSeq     []int32 // V_k: exclusive upper bound on the sequence ids used at step k (ids run 0..V_k-1; not every id below it need occur)
}

// NSteps returns the number of steps.
func (s *Steps) NSteps() int { return len(s.Starts) }

// End returns the exclusive end marker of step k.
func (s *Steps) End(k int, nMarkers int) int {
	if k+1 < len(s.Starts) {
		return s.Starts[k+1]
	}
	return nMarkers
}

// codeKey identifies a (running sequence id, allele) transition within
// one step's per-marker refinement pass. SmallMap is keyed by interned
// string Symbol and doesn't fit an integer pair key, so this uses a
// plain Go map.
type codeKey struct {
	seq    int32
	allele int32
}

// Build places step boundaries across the high-frequency view and
// assigns sequence ids for every target and reference haplotype.
func Build(gt genotype.GT, refGT genotype.GT, cmAt CMFunc, phaseStepCM, scaleFactor float64, rng *rand.Rand) *Steps {
	nMarkers := gt.NMarkers()
	starts := placeStepStarts(nMarkers, cmAt, phaseStepCM, rng)

	if scaleFactor != 1.0 {
		starts = rescaleSteps(starts, scaleFactor, nMarkers, rng)
	}

	nHapsTarget := gt.NHaps()
	nHapsRef := 0
	if refGT != nil {
		nHapsRef = refGT.NHaps()
	}
	totalHaps := nHapsTarget + nHapsRef

	steps := &Steps{Starts: starts, HapToSeq: make([][]int32, len(starts)), NSeq: make([]int32, len(starts))}

	for k := range starts {
		end := steps.End(k, nMarkers)
		hapToSeq := make([]int32, totalHaps)
		for h := range hapToSeq {
			hapToSeq[h] = 1
		}

		// Target sweep: assigns ids, building the code table from
		// scratch each marker.
		var nextID int32 = 2
		tables := make([]map[codeKey]int32, end-starts[k])
		for m := starts[k]; m < end; m++ {
			table := make(map[codeKey]int32)
			tables[m-starts[k]] = table
			for h := 0; h < nHapsTarget; h++ {
				allele := gt.Allele(m, h)
				if allele < 0 {
					allele = 0
				}
				key := codeKey{seq: hapToSeq[h], allele: allele}
				id, ok := table[key]
				if !ok {
					id = nextID
					nextID++
					table[key] = id
				}
				hapToSeq[h] = id
			}
		}

		// The reference sweep replays the same markers against the
		// target sweep's per-marker tables, read only: a reference
		// haplotype that follows a target pattern ends the step with
		// that pattern's id, and one that leaves every target pattern
		// pools to 0 for the rest of the step.
		seenByTarget := make(map[int32]bool, nextID)
		for h := 0; h < nHapsTarget; h++ {
			seenByTarget[hapToSeq[h]] = true
		}
		for h := nHapsTarget; h < totalHaps; h++ {
			hapToSeq[h] = 1
		}
		for m := starts[k]; m < end; m++ {
			// Look up the target table's transitions so reference
			// haplotypes following an already-observed path reuse the
			// same ids.
			table := tables[m-starts[k]]
			for h := nHapsTarget; h < totalHaps; h++ {
				allele := refGT.Allele(m, h-nHapsTarget)
				if allele < 0 {
					allele = 0
				}
				key := codeKey{seq: hapToSeq[h], allele: allele}
				id, ok := table[key]
				if !ok {
					id = 0 // reference-only pattern: pools to 0
				}
				hapToSeq[h] = id
			}
		}

		steps.HapToSeq[k] = hapToSeq
		steps.NSeq[k] = nextID
	}
	return steps
}

func placeStepStarts(nMarkers int, cmAt CMFunc, phaseStepCM float64, rng *rand.Rand) []int {
	if nMarkers == 0 {
		return nil
	}
	offset := rng.Float64() * phaseStepCM
	base := cmAt(0)
	var starts []int
	next := base + offset
	m := 0
	starts = append(starts, 0)
	for m < nMarkers {
		for m < nMarkers && cmAt(m) < next {
			m++
		}
		if m >= nMarkers {
			break
		}
		starts = append(starts, m)
		next = cmAt(m) + phaseStepCM
	}
	return starts
}

// rescaleSteps replicates and partially shuffles the step list to
// reach ceil(nSteps*scaleFactor) entries, minimum minSteps. It
// preserves the original boundary set's monotone order; the partial
// shuffle is approximated here by resampling midpoints between
// existing consecutive steps.
func rescaleSteps(starts []int, scaleFactor float64, nMarkers int, rng *rand.Rand) []int {
	target := int(math.Ceil(float64(len(starts)) * scaleFactor))
	if target < minSteps {
		target = minSteps
	}
	if target <= len(starts) || len(starts) < 2 {
		return starts
	}
	out := append([]int{}, starts...)
	for len(out) < target {
		i := rng.Intn(len(out) - 1)
		lo, hi := out[i], out[i+1]
		if hi-lo < 2 {
			continue
		}
		mid := lo + 1 + rng.Intn(hi-lo-1)
		out = append(out, 0)
		copy(out[i+2:], out[i+1:])
		out[i+1] = mid
	}
	return out
}
