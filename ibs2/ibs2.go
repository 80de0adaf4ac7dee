// Package ibs2 implements identity-by-state (both alleles) segment
// discovery among target samples, used to keep the PBWT
// neighbour finder and the composite reference builder from treating a
// duplicate or near-duplicate sample as informative reference material
// for itself.
package ibs2

import (
	"sort"

	"github.com/exascience/refphase/genotype"
	"github.com/exascience/refphase/intervals"
)

const (
	minStepMarkers = 100
	maxStepMarkers = 1500
)

// SampleSeg is one IBS2 segment of sample pair (s, Other) covering the
// inclusive marker range [Start, End].
type SampleSeg struct {
	Other      int
	Start, End int
}

// Table is, per target sample, the sorted list of SampleSeg describing
// every other target sample it is IBS2 with over some marker range.
type Table struct {
	segs [][]SampleSeg // segs[s] sorted by Start
}

// AreIBS2 reports whether samples s and other are IBS2 at marker m,
// by linear scan over s's (typically short) segment list.
func (t *Table) AreIBS2(s, other, m int) bool {
	for _, seg := range t.segs[s] {
		if seg.Other == other && seg.Start <= m && m <= seg.End {
			return true
		}
	}
	return false
}

// Segments returns sample s's segment list.
func (t *Table) Segments(s int) []SampleSeg { return t.segs[s] }

// unorderedKey packs an unordered genotype (missing-safe) into a
// comparable value used to partition samples by genotype at one marker.
// Missing alleles get their own key so that Discover can route missing
// samples into every surviving partition.4 step 2.
type unorderedKey struct {
	a, b    int32
	missing bool
}

func keyOf(gt genotype.GT, m, s int) unorderedKey {
	a1, a2 := gt.Allele1(m, s), gt.Allele2(m, s)
	if a1 < 0 || a2 < 0 {
		return unorderedKey{missing: true}
	}
	if a1 > a2 {
		a1, a2 = a2, a1
	}
	return unorderedKey{a: a1, b: a2}
}

// CMFunc maps a marker index to its genetic position in cM.
type CMFunc func(m int) float64

// Discover finds all IBS2 segments among the nSamples target samples
// of gt. minCmIBS2 is the minimum segment length to
// retain.
func Discover(gt genotype.GT, cmAt CMFunc, minCmIBS2 float64) *Table {
	nMarkers := gt.NMarkers()
	nSamples := gt.NSamples()
	segs := make([][]SampleSeg, nSamples)

	for _, win := range stepWindows(nMarkers, cmAt, minCmIBS2/2) {
		classes := partitionWindow(gt, win.start, win.end, nSamples)
		for _, class := range classes {
			if len(class) < 2 {
				continue
			}
			if allHomozygous(gt, win.start, win.end, class) {
				continue
			}
			for i := 0; i < len(class); i++ {
				for j := 0; j < len(class); j++ {
					if i == j {
						continue
					}
					s, other := class[i], class[j]
					segs[s] = append(segs[s], SampleSeg{Other: other, Start: win.start, End: win.end - 1})
				}
			}
		}
	}

	// Merge per (sample,other) run with a 4.0 cM gap, expressed in
	// marker units via the local marker density, then extend and
	// re-merge.4 steps 4-6.
	markersPerCM := markerDensity(nMarkers, cmAt)
	gapMarkers := int32(4.0 * markersPerCM)
	minMarkers := int32(minCmIBS2 * markersPerCM)

	for s := range segs {
		segs[s] = mergeAndFilter(segs[s], gapMarkers, minMarkers, gt, s, cmAt)
	}
	return &Table{segs: segs}
}

type window struct{ start, end int } // [start, end)

// stepWindows partitions [0,nMarkers) into windows of at least minCM
// cM, clamped to [minStepMarkers, maxStepMarkers] markers.
func stepWindows(nMarkers int, cmAt CMFunc, minCM float64) []window {
	var wins []window
	start := 0
	for start < nMarkers {
		end := start + minStepMarkers
		if end > nMarkers {
			end = nMarkers
		}
		startCM := cmAt(start)
		for end < nMarkers && (cmAt(end-1)-startCM < minCM) && end-start < maxStepMarkers {
			end++
		}
		if end-start > maxStepMarkers {
			end = start + maxStepMarkers
		}
		wins = append(wins, window{start, end})
		start = end
	}
	return wins
}

func markerDensity(nMarkers int, cmAt CMFunc) float64 {
	if nMarkers < 2 {
		return 1.0
	}
	span := cmAt(nMarkers-1) - cmAt(0)
	if span <= 0 {
		return 1.0
	}
	return float64(nMarkers-1) / span
}

// partitionWindow recursively splits the sample set by unordered
// genotype at each marker of [start,end), propagating samples with a
// missing genotype into every partition.
func partitionWindow(gt genotype.GT, start, end, nSamples int) [][]int {
	all := make([]int, nSamples)
	for i := range all {
		all[i] = i
	}
	classes := [][]int{all}
	for m := start; m < end; m++ {
		var next [][]int
		for _, class := range classes {
			byKey := make(map[unorderedKey][]int)
			var missing []int
			for _, s := range class {
				k := keyOf(gt, m, s)
				if k.missing {
					missing = append(missing, s)
					continue
				}
				byKey[k] = append(byKey[k], s)
			}
			for _, members := range byKey {
				next = append(next, append(append([]int{}, members...), missing...))
			}
			if len(byKey) == 0 && len(missing) > 0 {
				next = append(next, missing)
			}
		}
		classes = next
	}
	return classes
}

func allHomozygous(gt genotype.GT, start, end int, class []int) bool {
	for _, s := range class {
		for m := start; m < end; m++ {
			a1, a2 := gt.Allele1(m, s), gt.Allele2(m, s)
			if a1 != a2 {
				return false
			}
		}
	}
	return true
}

func mergeAndFilter(in []SampleSeg, gapMarkers, minMarkers int32, gt genotype.GT, s int, cmAt CMFunc) []SampleSeg {
	byOther := make(map[int][]intervals.Interval)
	for _, seg := range in {
		byOther[seg.Other] = append(byOther[seg.Other], intervals.Interval{Start: int32(seg.Start), End: int32(seg.End) + 1})
	}
	var out []SampleSeg
	for other, ivals := range byOther {
		intervals.SortByStart(ivals)
		merged := intervals.MergeWithGap(ivals, gapMarkers)
		for _, iv := range merged {
			startM, endM := extendSegment(gt, s, other, int(iv.Start), int(iv.End)-1)
			out = append(out, SampleSeg{Other: other, Start: startM, End: endM})
		}
	}
	// Re-merge after extension, then filter by length.
	byOther = make(map[int][]intervals.Interval)
	for _, seg := range out {
		byOther[seg.Other] = append(byOther[seg.Other], intervals.Interval{Start: int32(seg.Start), End: int32(seg.End) + 1})
	}
	out = out[:0]
	for other, ivals := range byOther {
		intervals.SortByStart(ivals)
		merged := intervals.MergeWithGap(ivals, gapMarkers)
		for _, iv := range merged {
			if iv.End-iv.Start < minMarkers {
				continue
			}
			out = append(out, SampleSeg{Other: other, Start: int(iv.Start), End: int(iv.End) - 1})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// extendSegment grows [start,end] leftward/rightward while s and other
// remain unordered-IBS2 at the next marker. It
// does not attempt to respect neighbouring same-pair segments, since
// those were already merged away by mergeAndFilter's gap pass.
func extendSegment(gt genotype.GT, s, other, start, end int) (int, int) {
	for start > 0 && keyOf(gt, start-1, s) == keyOf(gt, start-1, other) && !keyOf(gt, start-1, s).missing {
		start--
	}
	n := gt.NMarkers()
	for end+1 < n && keyOf(gt, end+1, s) == keyOf(gt, end+1, other) && !keyOf(gt, end+1, s).missing {
		end++
	}
	return start, end
}
