package genotype

import (
	"testing"

	"github.com/exascience/refphase/marker"
)

func buildGT(t *testing.T, nMarkers, nSamples int) GT {
	list := make([]marker.Marker, nMarkers)
	for m := range list {
		mk, err := marker.New("chr1", int32(m+1), []string{"A", "C"}, -1, nil)
		if err != nil {
			t.Fatal(err)
		}
		list[m] = mk
	}
	ms := marker.NewMarkers(list)
	recs := make([]*GTRec, nMarkers)
	for m := range recs {
		r := NewGTRec(nSamples)
		for s := 0; s < nSamples; s++ {
			r.Allele1[s] = int32((m + s) % 2)
			r.Allele2[s] = int32((m + s + 1) % 2)
			r.Phased[s] = true
		}
		recs[m] = r
	}
	return NewBasicGT(ms, recs)
}

func TestRestrictPreservesAlleles(t *testing.T) {
	gt := buildGT(t, 10, 3)
	idx := []int{1, 3, 4, 8}
	r := Restrict(gt, idx)
	if r.NMarkers() != len(idx) {
		t.Fatalf("got %d markers, want %d", r.NMarkers(), len(idx))
	}
	for i, m := range idx {
		for s := 0; s < gt.NSamples(); s++ {
			if r.Allele1(i, s) != gt.Allele1(m, s) || r.Allele2(i, s) != gt.Allele2(m, s) {
				t.Errorf("restricted marker %d (base %d) sample %d: mismatch", i, m, s)
			}
		}
	}
}

func TestRestrictSamplesPreservesAlleles(t *testing.T) {
	gt := buildGT(t, 5, 6)
	keep := []int{0, 2, 5}
	r := RestrictSamples(gt, keep)
	if r.NSamples() != len(keep) {
		t.Fatalf("got %d samples, want %d", r.NSamples(), len(keep))
	}
	for m := 0; m < gt.NMarkers(); m++ {
		for i, s := range keep {
			if r.Allele1(m, i) != gt.Allele1(m, s) || r.Allele2(m, i) != gt.Allele2(m, s) {
				t.Errorf("marker %d restricted sample %d (base %d): mismatch", m, i, s)
			}
			if r.Allele(m, 2*i) != gt.Allele(m, 2*s) || r.Allele(m, 2*i+1) != gt.Allele(m, 2*s+1) {
				t.Errorf("marker %d restricted hap %d (base hap %d): mismatch", m, 2*i, 2*s)
			}
		}
	}
}

func TestSpliceRoutesToHeadOrTail(t *testing.T) {
	full := buildGT(t, 10, 2)
	head := Restrict(full, []int{0, 1, 2, 3})
	tailIdx := []int{4, 5, 6, 7, 8, 9}
	tail := Restrict(full, tailIdx)
	spliced := Splice(head, tail, 4, full.Markers())

	if spliced.NMarkers() != full.NMarkers() {
		t.Fatalf("got %d markers, want %d", spliced.NMarkers(), full.NMarkers())
	}
	for m := 0; m < full.NMarkers(); m++ {
		for s := 0; s < full.NSamples(); s++ {
			if spliced.Allele1(m, s) != full.Allele1(m, s) || spliced.Allele2(m, s) != full.Allele2(m, s) {
				t.Errorf("marker %d sample %d: spliced mismatch", m, s)
			}
		}
	}
}
