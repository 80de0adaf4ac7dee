// Package lowfreq implements the low-frequency best-match finder:
// for each step, it finds a haplotype that shares a rare variant with
// a given target haplotype and also shares a long run of identity by
// state. Stage-2 imputation counts the match's allele as one extra
// vote at low-frequency sites.
package lowfreq

import (
	"math/rand"
	"sort"

	"github.com/exascience/refphase/codedsteps"
	"github.com/exascience/refphase/fixedphase"
)

// Matches holds, per step, the matched haplotype for every target
// haplotype (or -1 if none qualified).
type Matches struct {
	Match [][]int32 // Match[k][h], h in [0, nHapsTarget)
}

// HapSample maps a haplotype index to its owning sample index.
type HapSample func(h int32) int

// Build computes low-frequency best matches for every step.
// refineSteps bounds how many subsequent steps the candidate lists
// are split against for refinement; a value of 1 splits against the
// next step only, a value below 1 performs no refinement, and
// refinement never runs past the last step.
func Build(carriers []fixedphase.Carriers, steps *codedsteps.Steps, nHapsTarget int, hapSample HapSample, refineSteps int, rng *rand.Rand) *Matches {
	nSteps := steps.NSteps()
	m := &Matches{Match: make([][]int32, nSteps)}

	for k := 0; k < nSteps; k++ {
		match := make([]int32, nHapsTarget)
		for h := range match {
			match[h] = -1
		}

		start := steps.Starts[k]
		end := steps.End(k, len(carriers))
		var lists [][]int32
		for mk := start; mk < end; mk++ {
			for _, carrierList := range carriers[mk].List {
				if len(carrierList) < 2 {
					continue
				}
				lst := make([]int32, len(carrierList))
				for i, h := range carrierList {
					lst[i] = int32(h)
				}
				lists = append(lists, lst)
			}
		}

		for r := 1; r <= refineSteps && k+r < nSteps; r++ {
			lists = refine(lists, steps.HapToSeq[k+r], hapSample)
		}

		for _, lst := range lists {
			assignMatches(lst, hapSample, match, rng)
		}
		m.Match[k] = match
	}
	return m
}

// refine splits each candidate list by the haplotype's coded sequence
// id at one further step, keeping only sublists with haplotypes from
// at least two distinct samples; Build calls this once
// per refinement round.
func refine(lists [][]int32, nextSeq []int32, hapSample HapSample) [][]int32 {
	var out [][]int32
	for _, lst := range lists {
		byID := make(map[int32][]int32)
		for _, h := range lst {
			byID[nextSeq[h]] = append(byID[nextSeq[h]], h)
		}
		ids := make([]int32, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			sub := byID[id]
			if distinctSamples(sub, hapSample) >= 2 {
				out = append(out, sub)
			}
		}
	}
	return out
}

func distinctSamples(lst []int32, hapSample HapSample) int {
	seen := make(map[int]bool)
	for _, h := range lst {
		seen[hapSample(h)] = true
	}
	return len(seen)
}

// assignMatches gives every target haplotype in lst a random
// different-sample partner from lst, rotating forward if the first
// pick collides with itself.
func assignMatches(lst []int32, hapSample HapSample, match []int32, rng *rand.Rand) {
	n := len(lst)
	if n < 2 {
		return
	}
	for idx, h := range lst {
		if int(h) >= len(match) {
			continue // reference-only haplotype, not a target
		}
		start := rng.Intn(n)
		for scan := 0; scan < n; scan++ {
			cand := lst[(start+scan)%n]
			if cand == h {
				continue
			}
			if hapSample(cand) == hapSample(h) {
				continue
			}
			match[h] = cand
			break
		}
		_ = idx
	}
}
