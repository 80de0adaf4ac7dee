// Package marker implements the immutable marker/allele model: a
// chromosome-interned, position-ordered description of a biallelic or
// multi-allelic site, plus the Markers list that knows how many bits
// it takes to encode an allele index at each site and can pack/unpack
// allele vectors into a compact bit array.
package marker

import (
	"fmt"
	"math/bits"

	"github.com/bits-and-blooms/bitset"

	"github.com/exascience/refphase/utils"
)

// Marker describes one site along a chromosome. Equality ignores ID.
type Marker struct {
	Chrom   utils.Symbol
	Pos     int32
	Alleles []string // Alleles[0] is the reference allele
	End     int32    // -1 if absent
	ID      []string
}

// New validates and constructs a Marker.
func New(chrom string, pos int32, alleles []string, end int32, id []string) (Marker, error) {
	if len(alleles) < 1 {
		return Marker{}, fmt.Errorf("marker at %v:%v has no alleles", chrom, pos)
	}
	seen := make(map[string]bool, len(alleles))
	for _, a := range alleles {
		if a == "" {
			return Marker{}, fmt.Errorf("marker at %v:%v has an empty allele string", chrom, pos)
		}
		if seen[a] {
			return Marker{}, fmt.Errorf("marker at %v:%v has duplicate allele %q", chrom, pos, a)
		}
		seen[a] = true
	}
	return Marker{
		Chrom:   utils.Intern(chrom),
		Pos:     pos,
		Alleles: alleles,
		End:     end,
		ID:      id,
	}, nil
}

// NAlleles returns the number of distinct alleles at this marker.
func (m Marker) NAlleles() int {
	return len(m.Alleles)
}

// Less orders markers by chromosome (compared by utils.SymbolHash of
// the interned name, not by chromosome number), position, allele list
// (lexicographic), then END.
func Less(a, b Marker) bool {
	if a.Chrom != b.Chrom {
		return utils.SymbolHash(a.Chrom) < utils.SymbolHash(b.Chrom)
	}
	if a.Pos != b.Pos {
		return a.Pos < b.Pos
	}
	n := len(a.Alleles)
	if len(b.Alleles) < n {
		n = len(b.Alleles)
	}
	for i := 0; i < n; i++ {
		if a.Alleles[i] != b.Alleles[i] {
			return a.Alleles[i] < b.Alleles[i]
		}
	}
	if len(a.Alleles) != len(b.Alleles) {
		return len(a.Alleles) < len(b.Alleles)
	}
	return a.End < b.End
}

// bitsFor returns ceil(log2(n)) for n >= 1, with the convention that a
// single allele needs 0 bits (an invariant marker packs to nothing).
func bitsFor(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// Markers is an ordered, non-empty list of Marker with precomputed bit
// widths for the packed allele-vector representation.
type Markers struct {
	list             []Marker
	bitsPerAllele    []int
	bitOffset        []int // cumulative bit offset of marker m's field, per haplotype
	sumHaplotypeBits int
}

// NewMarkers builds a Markers list. list must be non-empty and sorted by Less.
func NewMarkers(list []Marker) *Markers {
	if len(list) == 0 {
		internalPanicEmpty()
	}
	ms := &Markers{
		list:          list,
		bitsPerAllele: make([]int, len(list)),
		bitOffset:     make([]int, len(list)),
	}
	offset := 0
	for i, m := range list {
		w := bitsFor(m.NAlleles())
		ms.bitsPerAllele[i] = w
		ms.bitOffset[i] = offset
		offset += w
	}
	ms.sumHaplotypeBits = offset
	return ms
}

func internalPanicEmpty() {
	panic("marker: NewMarkers requires a non-empty marker list")
}

// Len returns the number of markers.
func (ms *Markers) Len() int { return len(ms.list) }

// At returns the marker at index i.
func (ms *Markers) At(i int) Marker { return ms.list[i] }

// All returns the underlying marker slice; callers must not mutate it.
func (ms *Markers) All() []Marker { return ms.list }

// BitsPerAllele returns ceil(log2(nAlleles(m))) for marker m.
func (ms *Markers) BitsPerAllele(m int) int { return ms.bitsPerAllele[m] }

// SumHaplotypeBits returns the total number of bits needed to pack one
// full haplotype's allele vector across all markers in the list.
func (ms *Markers) SumHaplotypeBits() int { return ms.sumHaplotypeBits }

// Pack encodes an allele vector (one allele index per marker, in
// marker order, with 0 <= alleles[m] < NAlleles(m)) into a bit array.
func (ms *Markers) Pack(alleles []int32) *bitset.BitSet {
	if len(alleles) != len(ms.list) {
		panic("marker: Pack: allele vector length mismatch")
	}
	bs := bitset.New(uint(ms.sumHaplotypeBits))
	for m, a := range alleles {
		w := ms.bitsPerAllele[m]
		base := uint(ms.bitOffset[m])
		for b := 0; b < w; b++ {
			if (a>>uint(b))&1 == 1 {
				bs.Set(base + uint(b))
			}
		}
	}
	return bs
}

// Unpack decodes a bit array produced by Pack back into an allele
// vector. Round-tripping through Pack/Unpack is exact.
func (ms *Markers) Unpack(bs *bitset.BitSet) []int32 {
	alleles := make([]int32, len(ms.list))
	for m := range ms.list {
		w := ms.bitsPerAllele[m]
		base := uint(ms.bitOffset[m])
		var a int32
		for b := 0; b < w; b++ {
			if bs.Test(base + uint(b)) {
				a |= 1 << uint(b)
			}
		}
		alleles[m] = a
	}
	return alleles
}

// Restrict returns a new Markers list over the given ascending sorted
// subset of marker indices, and the index mapping (subset index ->
// original index) that callers use to build a genotype.Restrict view.
func (ms *Markers) Restrict(indices []int) (*Markers, []int) {
	sub := make([]Marker, len(indices))
	for i, idx := range indices {
		sub[i] = ms.list[idx]
	}
	mapped := make([]int, len(indices))
	copy(mapped, indices)
	return NewMarkers(sub), mapped
}
