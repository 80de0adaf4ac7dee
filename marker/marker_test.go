package marker

import (
	"math/rand"
	"testing"
)

func buildMarkers(nAlleles []int) *Markers {
	list := make([]Marker, len(nAlleles))
	for i, n := range nAlleles {
		alleles := make([]string, n)
		for a := range alleles {
			alleles[a] = string(rune('A' + a))
		}
		m, err := New("chr1", int32(100*i+1), alleles, -1, nil)
		if err != nil {
			panic(err)
		}
		list[i] = m
	}
	return NewMarkers(list)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	ms := buildMarkers([]int{2, 3, 4, 1, 5, 16, 2})
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		alleles := make([]int32, ms.Len())
		for m := range alleles {
			n := ms.At(m).NAlleles()
			alleles[m] = int32(rng.Intn(n))
		}
		bs := ms.Pack(alleles)
		got := ms.Unpack(bs)
		for m := range alleles {
			if got[m] != alleles[m] {
				t.Fatalf("trial %d marker %d: got %d want %d", trial, m, got[m], alleles[m])
			}
		}
	}
}

func TestBitsPerAllele(t *testing.T) {
	ms := buildMarkers([]int{1, 2, 3, 4, 5, 16, 17})
	want := []int{0, 1, 2, 2, 3, 4, 5}
	for m, w := range want {
		if got := ms.BitsPerAllele(m); got != w {
			t.Errorf("marker %d: got %d bits, want %d", m, got, w)
		}
	}
}

func TestNewRejectsDuplicateAlleles(t *testing.T) {
	if _, err := New("chr1", 1, []string{"A", "A"}, -1, nil); err == nil {
		t.Fatal("expected error for duplicate allele strings")
	}
}
