package window

import "sort"

// MarkerIndices is the bidirectional mapping between reference-marker
// indices and the subset of them that are also target markers, plus
// the splice points derived from a window's overlap.
type MarkerIndices struct {
	TargToRef []int // strictly increasing, into [0, nRef)
	RefToTarg []int // length nRef, -1 where absent
	PrevSplice int  // in target-marker coordinates
	NextSplice int  // in target-marker coordinates
}

// NewMarkerIndices builds a MarkerIndices from a boolean mask over
// reference-marker positions, and the window's prev/next overlap
// counts and total marker count (in reference-marker coordinates).
func NewMarkerIndices(inTarget []bool, prevOverlap, nextOverlap, nRefMarkers int) *MarkerIndices {
	targToRef := make([]int, 0, len(inTarget))
	refToTarg := make([]int, len(inTarget))
	for m, in := range inTarget {
		if in {
			refToTarg[m] = len(targToRef)
			targToRef = append(targToRef, m)
		} else {
			refToTarg[m] = -1
		}
	}

	prevSpliceRef := prevOverlap / 2
	nextSpliceRef := (nRefMarkers + nextOverlap) / 2

	mi := &MarkerIndices{TargToRef: targToRef, RefToTarg: refToTarg}
	mi.PrevSplice = lowerBound(targToRef, prevSpliceRef)
	mi.NextSplice = lowerBound(targToRef, nextSpliceRef)
	return mi
}

// lowerBound returns the smallest index i such that targToRef[i] >= x.
func lowerBound(targToRef []int, x int) int {
	return sort.Search(len(targToRef), func(i int) bool { return targToRef[i] >= x })
}

// NTarg returns the number of target markers.
func (mi *MarkerIndices) NTarg() int { return len(mi.TargToRef) }

// NRef returns the number of reference markers.
func (mi *MarkerIndices) NRef() int { return len(mi.RefToTarg) }
