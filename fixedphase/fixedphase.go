// Package fixedphase computes the data that is fixed for the whole
// duration of one window's phasing iterations: carrier lists,
// high-frequency marker subset, IBS2 segments on that subset, and the
// interpolation weights used to project low-frequency markers onto
// their neighbouring high-frequency HMM states.
package fixedphase

import (
	"github.com/exascience/refphase/genotype"
	"github.com/exascience/refphase/ibs2"
)

// Carriers is the per-allele carrier classification for one marker. If
// HighFreq[a] is true, allele a has more carriers than the rare
// threshold and List[a] is nil; otherwise List[a] holds the sorted
// haplotype indices carrying allele a.
type Carriers struct {
	HighFreq []bool
	List     [][]int
}

// Data is the complete fixed-per-window precompute.
type Data struct {
	GT       genotype.GT
	RefGT    genotype.GT // nil if no reference panel
	Carriers []Carriers  // one per marker of GT
	CM       []float64   // per marker of GT, genetic position in cM

	HiFreqMarkers []int // indices into GT's markers; nil means "use all"
	HiFreqGT      genotype.GT
	HiFreqRefGT   genotype.GT
	IBS2          *ibs2.Table // over HiFreqGT's samples

	PrevHiFreqMarker []int     // per marker of GT, index into HiFreqMarkers
	PrevWt           []float64 // per marker of GT, interpolation weight toward PrevHiFreqMarker
}

// CMFunc maps a marker index of the full (non-restricted) window view
// to its genetic position in cM.
type CMFunc func(m int) float64

// Build computes Data for one window.
//
// target is the current window's unphased target genotypes; overlap,
// if non-nil, is the phased overlap carried from the previous window,
// covering the first overlapCount markers of target. refGT is the
// optional phased reference panel restricted to the same markers.
// ibs2MinCM is the minimum shared-segment length, in cM, for
// ibs2.Discover to call a sample pair IBS2.
func Build(target genotype.GT, overlap genotype.GT, overlapCount int, refGT genotype.GT, cmAt CMFunc, rare, ibs2MinCM float64) (*Data, error) {
	gt := target
	if overlap != nil && overlapCount > 0 {
		tailIdx := make([]int, target.NMarkers()-overlapCount)
		for i := range tailIdx {
			tailIdx[i] = overlapCount + i
		}
		tail := genotype.Restrict(target, tailIdx)
		gt = genotype.Splice(overlap, tail, overlapCount, target.Markers())
	}

	nMarkers := gt.NMarkers()
	nSamples := gt.NSamples()
	maxCarriers := int(float64(nSamples) * rare)

	carriers := make([]Carriers, nMarkers)
	for m := 0; m < nMarkers; m++ {
		nAlleles := gt.Markers().At(m).NAlleles()
		counts := make([][]int, nAlleles)
		for h := 0; h < gt.NHaps(); h++ {
			a := gt.Allele(m, h)
			if a < 0 {
				continue
			}
			counts[a] = append(counts[a], h)
		}
		c := Carriers{HighFreq: make([]bool, nAlleles), List: make([][]int, nAlleles)}
		for a := 0; a < nAlleles; a++ {
			if len(counts[a]) > maxCarriers {
				c.HighFreq[a] = true
			} else {
				c.List[a] = counts[a]
			}
		}
		carriers[m] = c
	}

	var hiFreq []int
	for m := 0; m < nMarkers; m++ {
		allHigh := true
		for _, hf := range carriers[m].HighFreq {
			if !hf {
				allHigh = false
				break
			}
		}
		if allHigh {
			hiFreq = append(hiFreq, m)
		}
	}

	useAll := len(hiFreq) < 2 || len(hiFreq) > int(0.9*float64(nMarkers))
	var hiFreqGT, hiFreqRefGT genotype.GT
	if useAll {
		hiFreq = nil
		hiFreqGT = gt
		hiFreqRefGT = refGT
	} else {
		hiFreqGT = genotype.Restrict(gt, hiFreq)
		if refGT != nil {
			hiFreqRefGT = genotype.Restrict(refGT, hiFreq)
		}
	}

	hiFreqCMAt := cmAt
	if hiFreq != nil {
		hiFreqCMAt = func(i int) float64 { return cmAt(hiFreq[i]) }
	}
	ibsTable := ibs2.Discover(hiFreqGT, ibs2.CMFunc(hiFreqCMAt), ibs2MinCM)

	prevHiFreqMarker := make([]int, nMarkers)
	prevWt := make([]float64, nMarkers)
	if hiFreq == nil {
		for m := range prevHiFreqMarker {
			prevHiFreqMarker[m] = m
			prevWt[m] = 1.0
		}
	} else {
		j := -1
		for m := 0; m < nMarkers; m++ {
			for j+1 < len(hiFreq) && cmAt(hiFreq[j+1]) <= cmAt(m) {
				j++
			}
			if j < 0 {
				prevHiFreqMarker[m] = 0
				prevWt[m] = 1.0
				continue
			}
			prevHiFreqMarker[m] = j
			if cmAt(hiFreq[j]) == cmAt(m) || j+1 == len(hiFreq) {
				prevWt[m] = 1.0
				continue
			}
			span := cmAt(hiFreq[j+1]) - cmAt(hiFreq[j])
			if span <= 0 {
				prevWt[m] = 1.0
				continue
			}
			prevWt[m] = 1.0 - (cmAt(m)-cmAt(hiFreq[j]))/span
		}
	}

	cm := make([]float64, nMarkers)
	for m := range cm {
		cm[m] = cmAt(m)
	}

	return &Data{
		GT:               gt,
		RefGT:            refGT,
		Carriers:         carriers,
		CM:               cm,
		HiFreqMarkers:    hiFreq,
		HiFreqGT:         hiFreqGT,
		HiFreqRefGT:      hiFreqRefGT,
		IBS2:             ibsTable,
		PrevHiFreqMarker: prevHiFreqMarker,
		PrevWt:           prevWt,
	}, nil
}

// IsHiFreq reports whether marker m of the full window is in the
// high-frequency subset.
func (d *Data) IsHiFreq(m int) bool {
	if d.HiFreqMarkers == nil {
		return true
	}
	return d.PrevHiFreqMarker[m] < len(d.HiFreqMarkers) && d.HiFreqMarkers[d.PrevHiFreqMarker[m]] == m
}
