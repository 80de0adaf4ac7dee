package bref

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/exascience/refphase/genotype"
	"github.com/exascience/refphase/marker"
)

func buildPanel(t *testing.T, nMarkers, nSamples int) (*marker.Markers, genotype.GT) {
	rng := rand.New(rand.NewSource(42))
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
			r.Allele1[s] = int32(rng.Intn(2))
			r.Allele2[s] = int32(rng.Intn(2))
			r.Phased[s] = true
		}
		recs[m] = r
	}
	return ms, genotype.NewBasicGT(ms, recs)
}

func TestBrefRoundTrip(t *testing.T) {
	const nMarkers, nSamples = 50, 30
	ms, gt := buildPanel(t, nMarkers, nSamples)
	samples := make([]string, nSamples)
	for i := range samples {
		samples[i] = "s" + string(rune('A'+i%26))
	}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, samples)
	if err != nil {
		t.Fatal(err)
	}
	for m := 0; m < nMarkers; m++ {
		if err := w.WriteMarker(ms.At(m), ms, m, gt); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	for m := 0; m < nMarkers; m++ {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("marker %d: %v", m, err)
		}
		for h := 0; h < gt.NHaps(); h++ {
			want := gt.Allele(m, h)
			got := rec.Allele(h)
			if got != want {
				t.Errorf("marker %d hap %d: got %d want %d", m, h, got, want)
			}
		}
	}
}
