package cmd

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/exascience/refphase/bref"
	"github.com/exascience/refphase/genotype"
	"github.com/exascience/refphase/marker"
	"github.com/exascience/refphase/vcf"
	"github.com/exascience/refphase/window"
)

// panel is a fully materialized sample panel: its marker list, its
// genotype/haplotype data, and the sample names in column order.
type panel struct {
	Markers *marker.Markers
	GT      genotype.GT
	Samples []string
}

// loadVCFPanel reads every data line of a VCF into an in-memory panel.
// This system phases whole chromosomes' worth of windows against one
// in-memory marker list, so there is no streaming win from decoding
// lazily here; the sliding-window streamer (window.Streamer) is what
// makes the phasing loop itself memory-bounded.
func loadVCFPanel(path string) (*panel, error) {
	in, err := vcf.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	hdr, err := vcf.ParseHeader(in.Reader)
	if err != nil {
		return nil, fmt.Errorf("%v: %v", path, err)
	}
	nSamples := len(hdr.Samples)

	var markers []marker.Marker
	var recs []*genotype.GTRec
	for {
		line, err := in.Reader.ReadString('\n')
		if len(line) > 0 {
			for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
				line = line[:len(line)-1]
			}
			v, perr := vcf.ParseVariant(line, nSamples)
			if perr != nil {
				return nil, fmt.Errorf("%v: %v", path, perr)
			}
			m, merr := marker.New(v.Chrom, v.Pos, append([]string{v.Ref}, v.Alt...), v.End, v.ID)
			if merr != nil {
				return nil, fmt.Errorf("%v: %v", path, merr)
			}
			markers = append(markers, m)
			rec := genotype.NewGTRec(nSamples)
			for s := 0; s < nSamples; s++ {
				g := v.Genotype[s]
				rec.Allele1[s] = g.Allele1
				rec.Allele2[s] = g.Allele2
				rec.Phased[s] = g.Phased
			}
			recs = append(recs, rec)
		}
		if err != nil {
			break
		}
	}
	if len(markers) == 0 {
		return nil, fmt.Errorf("%v: no data records", path)
	}
	ms := marker.NewMarkers(markers)
	return &panel{Markers: ms, GT: genotype.NewBasicGT(ms, recs), Samples: hdr.Samples}, nil
}

// loadBrefPanel reads a bref3-encoded reference panel in full.
func loadBrefPanel(path string) (*panel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := bref.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	var markers []marker.Marker
	var dense [][]int32
	for {
		rec, err := r.Next()
		if err != nil {
			break
		}
		markers = append(markers, rec.Marker)
		alleles := make([]int32, len(r.Samples)*2)
		for h := range alleles {
			alleles[h] = rec.Allele(h)
		}
		dense = append(dense, alleles)
	}
	if len(markers) == 0 {
		return nil, fmt.Errorf("%v: no marker records", path)
	}
	ms := marker.NewMarkers(markers)
	recs := make([]*genotype.GTRec, len(markers))
	for m := range markers {
		rec := genotype.NewGTRec(len(r.Samples))
		for s := 0; s < len(r.Samples); s++ {
			rec.Allele1[s] = dense[m][2*s]
			rec.Allele2[s] = dense[m][2*s+1]
			rec.Phased[s] = true
		}
		recs[m] = rec
	}
	return &panel{Markers: ms, GT: genotype.NewBasicGT(ms, recs), Samples: r.Samples}, nil
}

// loadRefPanel dispatches a ref=<...> argument to the bref3 or VCF
// loader by file extension; there is no magic-byte sniffing here
// since bref3's own magic number is only readable after the file is
// already open as the format it implies.
func loadRefPanel(path string) (*panel, error) {
	if strings.HasSuffix(path, ".bref3") {
		return loadBrefPanel(path)
	}
	return loadVCFPanel(path)
}

// convertPanel writes p out in bref3 if out ends in ".bref3", or as a
// VCF otherwise, with no phasing performed.
func convertPanel(p *panel, out string) {
	if strings.HasSuffix(out, ".bref3") {
		f, err := os.Create(out)
		if err != nil {
			log.Fatalf("Error creating output file: %v", err)
		}
		defer f.Close()
		w, err := bref.NewWriter(f, p.Samples)
		if err != nil {
			log.Fatalf("Error writing bref3 header: %v", err)
		}
		for m := 0; m < p.Markers.Len(); m++ {
			if err := w.WriteMarker(p.Markers.At(m), p.Markers, m, p.GT); err != nil {
				log.Fatalf("Error writing bref3 marker: %v", err)
			}
		}
		if err := w.Close(); err != nil {
			log.Fatalf("Error closing bref3 output: %v", err)
		}
		return
	}

	o, err := vcf.Create(out)
	if err != nil {
		log.Fatalf("Error creating output file: %v", err)
	}
	defer o.Close()
	hdr := vcf.NewHeader()
	hdr.Samples = p.Samples
	if err := hdr.Format(o.Writer); err != nil {
		log.Fatalf("Error writing VCF header: %v", err)
	}
	for m := 0; m < p.Markers.Len(); m++ {
		mk := p.Markers.At(m)
		v := &vcf.Variant{Chrom: *mk.Chrom, Pos: mk.Pos, ID: mk.ID, Ref: mk.Alleles[0], Alt: mk.Alleles[1:], End: mk.End}
		v.Genotype = make([]vcf.Genotype, p.GT.NSamples())
		for s := range v.Genotype {
			v.Genotype[s] = vcf.Genotype{Phased: p.GT.IsPhased(s), Allele1: p.GT.Allele1(m, s), Allele2: p.GT.Allele2(m, s)}
		}
		if err := v.Format(o.Writer, false, false, false); err != nil {
			log.Fatalf("Error writing VCF record: %v", err)
		}
		if err := o.Writer.WriteByte('\n'); err != nil {
			log.Fatalf("Error writing VCF record: %v", err)
		}
	}
}

// loadGeneticMap reads a PLINK-format map file, or returns nil if
// path is empty.
func loadGeneticMap(path string) (*window.GeneticMap, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return window.ReadGeneticMap(f)
}

// loadExcludeList reads a newline-separated list of sample or marker
// identifiers to drop.
func loadExcludeList(path string) (map[string]bool, error) {
	set := make(map[string]bool)
	if path == "" {
		return set, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line != "" {
			set[line] = true
		}
	}
	return set, sc.Err()
}
