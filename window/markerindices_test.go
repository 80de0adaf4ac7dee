package window

import "testing"

func TestMarkerIndicesRoundTrip(t *testing.T) {
	inTarget := []bool{false, true, true, false, true, false, true, true}
	mi := NewMarkerIndices(inTarget, 2, 2, len(inTarget))

	for j, refIdx := range mi.TargToRef {
		if mi.RefToTarg[refIdx] != j {
			t.Errorf("refToTarg[targToRef[%d]] = %d, want %d", j, mi.RefToTarg[refIdx], j)
		}
	}
	for m, in := range inTarget {
		if in == (mi.RefToTarg[m] == -1) {
			t.Errorf("marker %d: inTarget=%v but refToTarg=%d", m, in, mi.RefToTarg[m])
		}
	}
	if mi.PrevSplice > mi.NextSplice || mi.NextSplice > mi.NTarg() {
		t.Errorf("splice points out of order: prev=%d next=%d nTarg=%d", mi.PrevSplice, mi.NextSplice, mi.NTarg())
	}
}
