// Package bref implements the binary random-access reference codec:
// a compact, seekable encoding of a phased reference panel, dense
// bit-packed per marker when no allele is carried by more than half of
// the haplotypes, sparse carrier lists when one is.
package bref

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/exascience/refphase/genotype"
	"github.com/exascience/refphase/marker"
)

const magic uint32 = 0x62726633 // ASCII "brf3"

// sparseMajorityFraction selects the sparse encoding once the majority allele
// has strictly more than this fraction of haplotypes; kept as a plain
// constant rather than a CLI parameter since the codec's only contract
// is exact round-trip, not a particular size/speed tradeoff.
const sparseMajorityFraction = 0.5

// Writer encodes a phased reference panel to bref3.
type Writer struct {
	w       *bufio.Writer
	samples []string
}

// NewWriter writes the bref3 header (magic + sample table) and
// returns a Writer ready to accept per-chromosome records.
func NewWriter(w io.Writer, samples []string) (*Writer, error) {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.BigEndian, magic); err != nil {
		return nil, err
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(len(samples))); err != nil {
		return nil, err
	}
	for _, s := range samples {
		if err := writeString(bw, s); err != nil {
			return nil, err
		}
	}
	return &Writer{w: bw, samples: samples}, nil
}

func writeString(w *bufio.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteMarker writes one marker's record, choosing dense or sparse
// representation by whichever allele is most frequent.
func (bw *Writer) WriteMarker(m marker.Marker, ms *marker.Markers, mIdx int, gt genotype.GT) error {
	w := bw.w
	if err := writeString(w, *m.Chrom); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, m.Pos); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(m.Alleles))); err != nil {
		return err
	}
	for _, a := range m.Alleles {
		if err := writeString(w, a); err != nil {
			return err
		}
	}

	nHaps := gt.NHaps()
	counts := make([]int, m.NAlleles())
	for h := 0; h < nHaps; h++ {
		a := gt.Allele(mIdx, h)
		if a >= 0 {
			counts[a]++
		}
	}
	majorAllele, majorCount := 0, 0
	for a, c := range counts {
		if c > majorCount {
			majorAllele, majorCount = a, c
		}
	}

	if float64(majorCount) <= sparseMajorityFraction*float64(nHaps) {
		return bw.writeDense(m, ms, mIdx, gt, nHaps)
	}
	return bw.writeSparse(m, mIdx, gt, nHaps, majorAllele)
}

func (bw *Writer) writeDense(m marker.Marker, ms *marker.Markers, mIdx int, gt genotype.GT, nHaps int) error {
	if err := bw.w.WriteByte(0); err != nil { // 0 = dense tag
		return err
	}
	alleles := make([]int32, nHaps)
	for h := range alleles {
		a := gt.Allele(mIdx, h)
		if a < 0 {
			a = 0
		}
		alleles[h] = a
	}
	bits := ms.BitsPerAllele(mIdx)
	n := (nHaps*bits + 7) / 8
	buf := make([]byte, n)
	bitOff := 0
	for _, a := range alleles {
		for b := 0; b < bits; b++ {
			if (a>>uint(b))&1 == 1 {
				buf[bitOff/8] |= 1 << uint(bitOff%8)
			}
			bitOff++
		}
	}
	_, err := bw.w.Write(buf)
	return err
}

func (bw *Writer) writeSparse(m marker.Marker, mIdx int, gt genotype.GT, nHaps, majorAllele int) error {
	if err := bw.w.WriteByte(1); err != nil { // 1 = sparse tag
		return err
	}
	if err := binary.Write(bw.w, binary.BigEndian, uint32(majorAllele)); err != nil {
		return err
	}
	nAlleles := m.NAlleles()
	lists := make([][]uint32, nAlleles)
	for h := 0; h < nHaps; h++ {
		a := gt.Allele(mIdx, h)
		if a < 0 || int(a) == majorAllele {
			continue
		}
		lists[a] = append(lists[a], uint32(h))
	}
	if err := binary.Write(bw.w, binary.BigEndian, uint32(nAlleles)); err != nil {
		return err
	}
	for a := 0; a < nAlleles; a++ {
		if a == majorAllele {
			if err := binary.Write(bw.w, binary.BigEndian, uint32(0)); err != nil {
				return err
			}
			continue
		}
		sort.Slice(lists[a], func(i, j int) bool { return lists[a][i] < lists[a][j] })
		if err := binary.Write(bw.w, binary.BigEndian, uint32(len(lists[a]))); err != nil {
			return err
		}
		for _, h := range lists[a] {
			if err := binary.Write(bw.w, binary.BigEndian, h); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes any buffered output.
func (bw *Writer) Close() error { return bw.w.Flush() }

// Record is one decoded marker, holding either a dense allele-per-
// haplotype array or a sparse major-allele-plus-carrier-lists form,
// and answering random Allele(hap) queries either way.
type Record struct {
	Marker marker.Marker
	dense  []int32   // nil if sparse
	major  int32      // used if dense == nil
	lists  [][]uint32 // per allele, sorted haplotype indices; nil at major
}

// Allele returns the allele carried by haplotype h at this record.
func (r *Record) Allele(h int) int32 {
	if r.dense != nil {
		return r.dense[h]
	}
	for a, lst := range r.lists {
		i := sort.Search(len(lst), func(i int) bool { return lst[i] >= uint32(h) })
		if i < len(lst) && lst[i] == uint32(h) {
			return int32(a)
		}
	}
	return r.major
}

// Reader decodes a bref3 stream one marker at a time.
type Reader struct {
	r       *bufio.Reader
	Samples []string
	nHaps   int
}

// NewReader reads and validates the header, taking the haplotype count
// from the sample table rather than from a caller-supplied hint.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	var got uint32
	if err := binary.Read(br, binary.BigEndian, &got); err != nil {
		return nil, err
	}
	if got != magic {
		return nil, fmt.Errorf("bref: bad magic %#x", got)
	}
	var n uint32
	if err := binary.Read(br, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	samples := make([]string, n)
	for i := range samples {
		s, err := readString(br)
		if err != nil {
			return nil, err
		}
		samples[i] = s
	}
	return &Reader{r: br, Samples: samples, nHaps: 2 * len(samples)}, nil
}

// Next decodes the next marker record, or returns io.EOF.
func (rd *Reader) Next() (*Record, error) {
	chrom, err := readString(rd.r)
	if err != nil {
		return nil, err
	}
	var pos int32
	if err := binary.Read(rd.r, binary.BigEndian, &pos); err != nil {
		return nil, err
	}
	var nAlleles uint32
	if err := binary.Read(rd.r, binary.BigEndian, &nAlleles); err != nil {
		return nil, err
	}
	alleles := make([]string, nAlleles)
	for i := range alleles {
		a, err := readString(rd.r)
		if err != nil {
			return nil, err
		}
		alleles[i] = a
	}
	m, err := marker.New(chrom, pos, alleles, -1, nil)
	if err != nil {
		return nil, err
	}

	tag, err := rd.r.ReadByte()
	if err != nil {
		return nil, err
	}
	rec := &Record{Marker: m}
	if tag == 0 {
		ms := marker.NewMarkers([]marker.Marker{m})
		bits := ms.BitsPerAllele(0)
		nBytes := (rd.nHaps*bits + 7) / 8
		buf := make([]byte, nBytes)
		if _, err := io.ReadFull(rd.r, buf); err != nil {
			return nil, err
		}
		dense := make([]int32, rd.nHaps)
		bitOff := 0
		for h := range dense {
			var a int32
			for b := 0; b < bits; b++ {
				if buf[bitOff/8]&(1<<uint(bitOff%8)) != 0 {
					a |= 1 << uint(b)
				}
				bitOff++
			}
			dense[h] = a
		}
		rec.dense = dense
		return rec, nil
	}

	var major uint32
	if err := binary.Read(rd.r, binary.BigEndian, &major); err != nil {
		return nil, err
	}
	rec.major = int32(major)
	var nA uint32
	if err := binary.Read(rd.r, binary.BigEndian, &nA); err != nil {
		return nil, err
	}
	rec.lists = make([][]uint32, nA)
	for a := uint32(0); a < nA; a++ {
		var cnt uint32
		if err := binary.Read(rd.r, binary.BigEndian, &cnt); err != nil {
			return nil, err
		}
		if cnt == 0 {
			continue
		}
		lst := make([]uint32, cnt)
		for i := range lst {
			if err := binary.Read(rd.r, binary.BigEndian, &lst[i]); err != nil {
				return nil, err
			}
		}
		rec.lists[a] = lst
	}
	return rec, nil
}
