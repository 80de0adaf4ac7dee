package compstate

import "testing"

func TestBuilderCapacityAndCoverage(t *testing.T) {
	const maxStates = 4
	stepStart := func(step int) int { return step * 10 }
	b := New(maxStates, 3, stepStart)

	events := []struct {
		hap  int32
		step int
	}{
		{1, 0}, {2, 1}, {3, 2}, {4, 3},
		{5, 10}, {1, 11}, {6, 20}, {7, 30},
	}
	for _, e := range events {
		b.Observe(e.hap, e.step)
		if b.NStates() > maxStates {
			t.Fatalf("after event %+v: NStates=%d exceeds maxStates=%d", e, b.NStates(), maxStates)
		}
	}

	const nMarkers = 400
	slots := b.Finalize(nMarkers)
	for i, segs := range slots {
		if len(segs) == 0 {
			t.Fatalf("slot %d has no segments", i)
		}
		prevEnd := 0
		for j, seg := range segs {
			if seg.Splice <= prevEnd && j > 0 {
				t.Errorf("slot %d segment %d: splice %d does not advance past %d", i, j, seg.Splice, prevEnd)
			}
			prevEnd = seg.Splice
		}
		if segs[len(segs)-1].Splice != nMarkers {
			t.Errorf("slot %d: final splice %d, want %d", i, segs[len(segs)-1].Splice, nMarkers)
		}
	}
}
