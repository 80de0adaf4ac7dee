package hmm

import (
	"math"
	"math/rand"
	"testing"
)

func TestForwardStepNormalises(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	const nStates = 50
	fwd := make([]float32, nStates)
	var sum float32
	for i := range fwd {
		fwd[i] = rng.Float32()
		sum += fwd[i]
	}
	for i := range fwd {
		fwd[i] /= sum
	}
	em := make([]float32, nStates)
	for i := range em {
		em[i] = 0.1 + rng.Float32()*0.9
	}
	const pRecomb = 0.02
	var inSum float64
	for _, v := range fwd {
		inSum += float64(v)
	}
	var want float64 // sum of the new values before renormalisation
	for i, v := range fwd {
		want += float64(em[i]) * ((1-pRecomb)/inSum*float64(v) + pRecomb/nStates)
	}
	got := ForwardStep(fwd, em, pRecomb)
	if math.Abs(float64(got)-want) > 1e-4 {
		t.Errorf("ForwardStep returned sum %v, want pre-normalisation sum %v", got, want)
	}
	var actual float32
	for _, v := range fwd {
		actual += v
	}
	if math.Abs(float64(actual)-1) > 1e-4 {
		t.Errorf("fwd sums to %v after normalisation, want ~1", actual)
	}
}

func TestBackwardStepNormalises(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	const nStates = 50
	bwd := make([]float32, nStates)
	var sum float32
	for i := range bwd {
		bwd[i] = rng.Float32()
		sum += bwd[i]
	}
	for i := range bwd {
		bwd[i] /= sum
	}
	em := make([]float32, nStates)
	for i := range em {
		em[i] = 0.1 + rng.Float32()*0.9
	}
	got := BackwardStep(bwd, em, 0.02)
	if math.Abs(float64(got)-1) > 1e-4 {
		t.Errorf("BackwardStep returned sum %v, want ~1", got)
	}
}
