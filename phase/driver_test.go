package phase

import "testing"

func TestStepOfFindsEnclosingStep(t *testing.T) {
	starts := []int{0, 5, 12, 20}
	cases := []struct{ m, want int }{
		{0, 0}, {4, 0}, {5, 1}, {11, 1}, {12, 2}, {19, 2}, {20, 3}, {100, 3},
	}
	for _, c := range cases {
		if got := stepOf(starts, c.m); got != c.want {
			t.Errorf("stepOf(%v, %d) = %d, want %d", starts, c.m, got, c.want)
		}
	}
}
