package ibs2

import (
	"testing"

	"github.com/exascience/refphase/genotype"
	"github.com/exascience/refphase/marker"
)

func buildGT(t *testing.T, nMarkers, nSamples int, fill func(m, s int) (int32, int32)) genotype.GT {
	list := make([]marker.Marker, nMarkers)
	for m := range list {
		mk, err := marker.New("chr1", int32(m+1), []string{"A", "C"}, -1, nil)
		if err != nil {
			t.Fatal(err)
		}
		list[m] = mk
	}
	ms := marker.NewMarkers(list)
	recs := make([]*genotype.GTRec, nMarkers)
	for m := range recs {
		r := genotype.NewGTRec(nSamples)
		for s := 0; s < nSamples; s++ {
			a1, a2 := fill(m, s)
			r.Allele1[s], r.Allele2[s] = a1, a2
			r.Phased[s] = true
		}
		recs[m] = r
	}
	return genotype.NewBasicGT(ms, recs)
}

func TestDiscoverContainment(t *testing.T) {
	const nMarkers, nSamples = 400, 6
	gt := buildGT(t, nMarkers, nSamples, func(m, s int) (int32, int32) {
		if s < 2 {
			// samples 0 and 1 are identical everywhere: long IBS2 run.
			if (m/7)%2 == 0 {
				return 0, 0
			}
			return 0, 1
		}
		return int32((m + s) % 2), int32((m + s + 1) % 2)
	})
	cmAt := func(m int) float64 { return float64(m) * 0.01 }
	table := Discover(gt, cmAt, 2.0)

	for _, seg := range table.Segments(0) {
		if seg.Other != 1 {
			continue
		}
		for m := seg.Start; m <= seg.End; m++ {
			if !table.AreIBS2(0, 1, m) {
				t.Errorf("containment violated at marker %d within segment [%d,%d]", m, seg.Start, seg.End)
			}
		}
	}
}

func TestDiscoverNoSpuriousMatch(t *testing.T) {
	const nMarkers, nSamples = 200, 4
	gt := buildGT(t, nMarkers, nSamples, func(m, s int) (int32, int32) {
		return int32((m*7 + s*13) % 2), int32((m*11 + s*17) % 2)
	})
	cmAt := func(m int) float64 { return float64(m) * 0.01 }
	table := Discover(gt, cmAt, 2.0)
	for s := 0; s < nSamples; s++ {
		// Both alleles equal (m+s)%2, so every genotype is homozygous
		// and no marker can certify an IBS2 match.
		if n := len(table.Segments(s)); n != 0 {
			t.Errorf("sample %d: got %d IBS2 segments from homozygous-only data, want 0", s, n)
		}
		for _, seg := range table.Segments(s) {
			if seg.End-seg.Start+1 <= 0 {
				t.Errorf("degenerate segment %+v", seg)
			}
		}
	}
}
