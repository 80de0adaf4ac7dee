package hmm

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func TestRegressionMatchesClosedForm(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	acc := NewRecombAccumulator()
	var xs, ys []float64
	for i := 0; i < 500; i++ {
		x := rng.Float64() * 10
		y := 3.5*x + rng.NormFloat64()*0.1
		acc.Add(x, y)
		xs = append(xs, x)
		ys = append(ys, y)
	}
	got, ok := acc.Beta()
	if !ok {
		t.Fatal("expected a valid beta")
	}
	_, want := stat.LinearRegression(xs, ys, nil, false)
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("closed-form beta %v does not match gonum's OLS beta %v", got, want)
	}
}

func TestMergeAccumulators(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	full := NewRecombAccumulator()
	a := NewRecombAccumulator()
	b := NewRecombAccumulator()
	for i := 0; i < 300; i++ {
		x, y := rng.Float64()*5, rng.Float64()*5
		full.Add(x, y)
		if i%2 == 0 {
			a.Add(x, y)
		} else {
			b.Add(x, y)
		}
	}
	merged := Merge(a, b)
	gotBeta, _ := merged.Beta()
	wantBeta, _ := full.Beta()
	if math.Abs(gotBeta-wantBeta) > 1e-9 {
		t.Errorf("merged beta %v, want %v", gotBeta, wantBeta)
	}
}

func TestBetaZeroDenominator(t *testing.T) {
	acc := NewRecombAccumulator()
	acc.Add(1, 1)
	acc.Add(1, 2)
	if _, ok := acc.Beta(); ok {
		t.Fatal("expected no-update diagnostic for zero-variance x")
	}
}
