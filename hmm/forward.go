// Package hmm implements the Li-Stephens single-chain HMM core used
// by window-local phasing and imputation: forward and
// backward updates with linear rescaling over composite-reference
// states, the per-sample phase Baum-Welch pass, the stage-2 imputation
// Baum-Welch pass, and the recombination-factor regression.
//
// Probabilities are kept as 32-bit floats with per-step linear
// rescaling, never log-space.
package hmm

import "math"

// Params holds the HMM's per-window constant parameters.
type Params struct {
	PErr         float32 // allele mismatch probability
	RecombFactor float64 // scaling constant, genDist -> switch probability
	Ne           float64
}

// DefaultPErr computes the Li-Stephens default mismatch probability
// theta/(2*(theta+n)) with theta = 1/(ln(n)+0.5), used when the user
// does not supply err= explicitly.
func DefaultPErr(n int) float32 {
	theta := 1.0 / (math.Log(float64(n)) + 0.5)
	return float32(theta / (2 * (theta + float64(n))))
}

// PRecomb returns 1 - exp(-recombFactor * genDist), the per-marker
// switch probability.
func PRecomb(recombFactor, genDist float64) float32 {
	return float32(1 - math.Exp(-recombFactor*genDist))
}

// Emission returns em[k] for a homozygous (phase-determined) emission
// channel: (1-pErr) if the state's allele matches the observed allele,
// else pErr.
func Emission(stateAllele, observedAllele int32, pErr float32) float32 {
	if stateAllele == observedAllele {
		return 1 - pErr
	}
	return pErr
}

// ForwardStep advances fwd in place by one marker. em holds the emission weight for every state at
// this marker. fwd must sum to 1 on entry for the scale factor to be
// meaningful; it returns the sum of the new values before
// renormalisation, sum_k em[k]*(scale*fwd[k]+shift), and leaves fwd
// itself rescaled to sum to 1 unless every new value is exactly 0.
func ForwardStep(fwd []float32, em []float32, pRecomb float32) float32 {
	n := len(fwd)
	var sum float32
	for _, v := range fwd {
		sum += v
	}
	if sum == 0 {
		sum = 1
	}
	scale := (1 - pRecomb) / sum
	shift := pRecomb / float32(n)

	var newSum float32
	for k, v := range fwd {
		nv := em[k] * (scale*v + shift)
		fwd[k] = nv
		newSum += nv
	}
	if newSum > 0 {
		inv := 1 / newSum
		for k := range fwd {
			fwd[k] *= inv
		}
	}
	return newSum
}

// BackwardStep advances bwd in place by one marker, in reverse
// iteration order: bwd is multiplied
// by the emission weight for the marker being left, renormalised, then
// combined with scale and shift exactly as the forward update.
func BackwardStep(bwd []float32, em []float32, pRecomb float32) float32 {
	n := len(bwd)
	var emSum float32
	for k, v := range bwd {
		nv := v * em[k]
		bwd[k] = nv
		emSum += nv
	}
	if emSum > 0 {
		inv := 1 / emSum
		for k := range bwd {
			bwd[k] *= inv
		}
	}

	scale := (1 - pRecomb)
	shift := pRecomb / float32(n)
	var newSum float32
	for k, v := range bwd {
		nv := scale*v + shift
		bwd[k] = nv
		newSum += nv
	}
	if newSum > 0 {
		inv := 1 / newSum
		for k := range bwd {
			bwd[k] *= inv
		}
	}
	return newSum
}
