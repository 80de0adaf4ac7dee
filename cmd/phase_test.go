package cmd

import (
	"testing"

	"github.com/exascience/refphase/marker"
)

func mustMarker(t *testing.T, chrom string, pos int32) marker.Marker {
	m, err := marker.New(chrom, pos, []string{"A", "G"}, -1, nil)
	if err != nil {
		t.Fatalf("marker.New: %v", err)
	}
	return m
}

func TestParseChromFilter(t *testing.T) {
	cases := []struct {
		spec      string
		chrom     string
		start     int32
		end       int32
		hasRange  bool
		expectErr bool
	}{
		{spec: "", chrom: ""},
		{spec: "chr1", chrom: "chr1"},
		{spec: "chr1:100-200", chrom: "chr1", start: 100, end: 200, hasRange: true},
		{spec: "chr1:bad-200", expectErr: true},
		{spec: "chr1:100", expectErr: true},
	}
	for _, c := range cases {
		chrom, start, end, hasRange, err := parseChromFilter(c.spec)
		if c.expectErr {
			if err == nil {
				t.Errorf("parseChromFilter(%q): expected error, got none", c.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseChromFilter(%q): unexpected error: %v", c.spec, err)
			continue
		}
		if chrom != c.chrom || start != c.start || end != c.end || hasRange != c.hasRange {
			t.Errorf("parseChromFilter(%q) = %q, %v, %v, %v; want %q, %v, %v, %v",
				c.spec, chrom, start, end, hasRange, c.chrom, c.start, c.end, c.hasRange)
		}
	}
}

func TestExcludedMarker(t *testing.T) {
	m := mustMarker(t, "chr1", 100)
	excluded := map[string]bool{"chr1:100": true}
	if !excludedMarker(m, excluded) {
		t.Error("expected marker to be excluded by chrom:pos form")
	}

	mID, err := marker.New("chr1", 200, []string{"A", "G"}, -1, []string{"rs123"})
	if err != nil {
		t.Fatal(err)
	}
	excludedByID := map[string]bool{"rs123": true}
	if !excludedMarker(mID, excludedByID) {
		t.Error("expected marker to be excluded by ID")
	}

	if excludedMarker(m, map[string]bool{"chr2:100": true}) {
		t.Error("unexpected exclusion")
	}
}

func TestFirstDuplicate(t *testing.T) {
	if d := firstDuplicate([]string{"a", "b", "c"}); d != "" {
		t.Errorf("expected no duplicate, got %q", d)
	}
	if d := firstDuplicate([]string{"a", "b", "a"}); d != "a" {
		t.Errorf("expected duplicate %q, got %q", "a", d)
	}
}

func TestCheckEqualMarkerSetsPasses(t *testing.T) {
	target := marker.NewMarkers([]marker.Marker{mustMarker(t, "chr1", 100), mustMarker(t, "chr1", 200)})
	ref := marker.NewMarkers([]marker.Marker{mustMarker(t, "chr1", 100), mustMarker(t, "chr1", 200)})
	checkEqualMarkerSets(target, ref) // must not call log.Fatalln
}

func TestRangeIndices(t *testing.T) {
	got := rangeIndices(3, 7)
	want := []int{3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("rangeIndices(3,7) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rangeIndices(3,7) = %v, want %v", got, want)
		}
	}
}

func TestDoseApGp(t *testing.T) {
	cases := []struct {
		a1, a2           int32
		wantDose         float64
		wantAP1, wantAP2 float64
		wantGP           [3]float64
	}{
		{a1: 0, a2: 0, wantDose: 0, wantAP1: 0, wantAP2: 0, wantGP: [3]float64{1, 0, 0}},
		{a1: 0, a2: 1, wantDose: 1, wantAP1: 0, wantAP2: 1, wantGP: [3]float64{0, 1, 0}},
		{a1: 1, a2: 1, wantDose: 2, wantAP1: 1, wantAP2: 1, wantGP: [3]float64{0, 0, 1}},
		{a1: -1, a2: 1, wantDose: 1, wantAP1: 0, wantAP2: 1, wantGP: [3]float64{0, 1, 0}},
	}
	for _, c := range cases {
		if got := dose(c.a1, c.a2); got != c.wantDose {
			t.Errorf("dose(%v,%v) = %v, want %v", c.a1, c.a2, got, c.wantDose)
		}
		if got1, got2 := ap(c.a1), ap(c.a2); got1 != c.wantAP1 || got2 != c.wantAP2 {
			t.Errorf("ap(%v),ap(%v) = %v,%v, want %v,%v", c.a1, c.a2, got1, got2, c.wantAP1, c.wantAP2)
		}
		g0, g1, g2 := gp(c.a1, c.a2)
		if g0 != c.wantGP[0] || g1 != c.wantGP[1] || g2 != c.wantGP[2] {
			t.Errorf("gp(%v,%v) = %v,%v,%v, want %v", c.a1, c.a2, g0, g1, g2, c.wantGP)
		}
	}
}
