// Package genotype implements the uniform read-only genotype view:
// GTRec records, the GT façade interface, and
// restriction/splicing adaptors over it.
//
// Design note: GT is kept to a
// small tagged interface — three per-(marker,sample-or-hap) accessors
// plus NMarkers/NHaps/NSamples/IsPhased/Markers — implemented by concrete
// types (basicGT, restrictGT, restrictSamplesGT, spliceGT) rather than one polymorphic
// struct, so a caller holding a concrete type still inlines cleanly.
package genotype

import "github.com/exascience/refphase/marker"

// GT is a uniform read-only view over per-marker allele data, common to
// unphased target genotypes and phased reference panels.
type GT interface {
	// Allele1 and Allele2 return the two allele indices of sample s at
	// marker m, or -1 if missing.
	Allele1(m, s int) int32
	Allele2(m, s int) int32
	// Allele returns the allele index carried by haplotype h at marker
	// m. Haplotype 2s/2s+1 belong to sample s.
	Allele(m, h int) int32
	// IsPhased reports whether sample s's genotype is phased at every
	// marker of this view.
	IsPhased(s int) bool
	NMarkers() int
	NHaps() int
	NSamples() int
	Markers() *marker.Markers
}

// GTRec is one immutable, possibly-unphased, possibly-missing marker
// record for all target samples.
type GTRec struct {
	Allele1, Allele2 []int32 // -1 for missing, length nSamples
	Phased           []bool  // length nSamples
}

// NewGTRec builds a GTRec for nSamples samples, all initially missing
// and unphased.
func NewGTRec(nSamples int) *GTRec {
	a1 := make([]int32, nSamples)
	a2 := make([]int32, nSamples)
	for i := range a1 {
		a1[i], a2[i] = -1, -1
	}
	return &GTRec{Allele1: a1, Allele2: a2, Phased: make([]bool, nSamples)}
}

// basicGT is a GT view over a per-marker slice of GTRec for unphased
// or partially-phased target genotypes.
type basicGT struct {
	ms   *marker.Markers
	recs []*GTRec
}

// NewBasicGT builds a GT view directly from parsed per-marker records.
func NewBasicGT(ms *marker.Markers, recs []*GTRec) GT {
	if len(recs) != ms.Len() {
		panic("genotype: NewBasicGT: record count does not match marker count")
	}
	return &basicGT{ms: ms, recs: recs}
}

func (g *basicGT) Allele1(m, s int) int32 { return g.recs[m].Allele1[s] }
func (g *basicGT) Allele2(m, s int) int32 { return g.recs[m].Allele2[s] }
func (g *basicGT) Allele(m, h int) int32 {
	if h&1 == 0 {
		return g.recs[m].Allele1[h/2]
	}
	return g.recs[m].Allele2[h/2]
}
func (g *basicGT) IsPhased(s int) bool {
	for _, r := range g.recs {
		if !r.Phased[s] {
			return false
		}
	}
	return true
}
func (g *basicGT) NMarkers() int         { return len(g.recs) }
func (g *basicGT) NHaps() int            { return 2 * len(g.recs[0].Allele1) }
func (g *basicGT) NSamples() int         { return len(g.recs[0].Allele1) }
func (g *basicGT) Markers() *marker.Markers { return g.ms }

// SetPhase replaces the alleles and phase flag of sample s at marker m
// in place, without synchronisation. No code in this module calls it.
func (g *basicGT) SetPhase(m, s int, a1, a2 int32, phased bool) {
	g.recs[m].Allele1[s] = a1
	g.recs[m].Allele2[s] = a2
	g.recs[m].Phased[s] = phased
}

// restrictGT is a GT view over a subset of another GT's markers.
type restrictGT struct {
	base    GT
	ms      *marker.Markers
	indices []int // restricted marker index -> base marker index
}

// Restrict returns a GT view over the markers named by indices (which
// must be strictly increasing indices into base.Markers()).
func Restrict(base GT, indices []int) GT {
	sub, _ := base.Markers().Restrict(indices)
	return &restrictGT{base: base, ms: sub, indices: indices}
}

func (g *restrictGT) Allele1(m, s int) int32 { return g.base.Allele1(g.indices[m], s) }
func (g *restrictGT) Allele2(m, s int) int32 { return g.base.Allele2(g.indices[m], s) }
func (g *restrictGT) Allele(m, h int) int32  { return g.base.Allele(g.indices[m], h) }
func (g *restrictGT) IsPhased(s int) bool {
	for _, idx := range g.indices {
		if !phasedAt(g.base, idx, s) {
			return false
		}
	}
	return true
}
func phasedAt(base GT, m, s int) bool {
	// A restricted view checks phase per-marker rather than delegating
	// to base.IsPhased(s), which would test markers outside the subset.
	type perMarkerPhase interface{ PhasedAt(m, s int) bool }
	if pm, ok := base.(perMarkerPhase); ok {
		return pm.PhasedAt(m, s)
	}
	return base.IsPhased(s)
}
func (g *restrictGT) NMarkers() int            { return len(g.indices) }
func (g *restrictGT) NHaps() int               { return g.base.NHaps() }
func (g *restrictGT) NSamples() int            { return g.base.NSamples() }
func (g *restrictGT) Markers() *marker.Markers { return g.ms }

// PhasedAt reports the phase state of sample s at marker m specifically,
// letting restrictGT compose correctly.
func (g *basicGT) PhasedAt(m, s int) bool { return g.recs[m].Phased[s] }

// restrictSamplesGT is a GT view over a subset of another GT's samples,
// the sample-axis counterpart of restrictGT.
type restrictSamplesGT struct {
	base    GT
	samples []int // restricted sample index -> base sample index
}

// RestrictSamples returns a GT view over the samples named by samples
// (indices into base's own sample axis, in the order they should appear
// in the restricted view).
func RestrictSamples(base GT, samples []int) GT {
	return &restrictSamplesGT{base: base, samples: samples}
}

func (g *restrictSamplesGT) Allele1(m, s int) int32 { return g.base.Allele1(m, g.samples[s]) }
func (g *restrictSamplesGT) Allele2(m, s int) int32 { return g.base.Allele2(m, g.samples[s]) }
func (g *restrictSamplesGT) Allele(m, h int) int32 {
	s, half := h/2, h%2
	if half == 0 {
		return g.base.Allele1(m, g.samples[s])
	}
	return g.base.Allele2(m, g.samples[s])
}
func (g *restrictSamplesGT) IsPhased(s int) bool           { return g.base.IsPhased(g.samples[s]) }
func (g *restrictSamplesGT) NMarkers() int                 { return g.base.NMarkers() }
func (g *restrictSamplesGT) NHaps() int                    { return 2 * len(g.samples) }
func (g *restrictSamplesGT) NSamples() int                 { return len(g.samples) }
func (g *restrictSamplesGT) Markers() *marker.Markers      { return g.base.Markers() }

// spliceGT presents markers [0,splice) from head and [splice,n) from
// tail as one view, used to compose the phased overlap carried from the
// previous window with the current window's target genotypes.
type spliceGT struct {
	head, tail GT
	splice     int
	ms         *marker.Markers
}

// Splice builds a spliced GT view. head and tail must agree on
// NSamples/NHaps; head contributes markers [0,splice), tail contributes
// the remainder (tail must have exactly ms.Len()-splice markers at its
// end reserved for this purpose by the caller, e.g. via Restrict).
func Splice(head GT, tail GT, splice int, ms *marker.Markers) GT {
	return &spliceGT{head: head, tail: tail, splice: splice, ms: ms}
}

func (g *spliceGT) route(m int) (GT, int) {
	if m < g.splice {
		return g.head, m
	}
	return g.tail, m - g.splice
}
func (g *spliceGT) Allele1(m, s int) int32 {
	base, idx := g.route(m)
	return base.Allele1(idx, s)
}
func (g *spliceGT) Allele2(m, s int) int32 {
	base, idx := g.route(m)
	return base.Allele2(idx, s)
}
func (g *spliceGT) Allele(m, h int) int32 {
	base, idx := g.route(m)
	return base.Allele(idx, h)
}
func (g *spliceGT) IsPhased(s int) bool { return g.head.IsPhased(s) && g.tail.IsPhased(s) }
func (g *spliceGT) NMarkers() int       { return g.ms.Len() }
func (g *spliceGT) NHaps() int          { return g.head.NHaps() }
func (g *spliceGT) NSamples() int       { return g.head.NSamples() }
func (g *spliceGT) Markers() *marker.Markers { return g.ms }
