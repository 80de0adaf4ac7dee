// elPrep: a high-performance tool for analyzing SAM/BAM files.
// Copyright (c) 2017-2020 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elprep/blob/master/LICENSE.txt>.

package vcf

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/exascience/refphase/utils"
	"github.com/exascience/refphase/utils/bgzf"
)

const headerColumnsPrefix = "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO"

func getLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ParseHeader parses the meta-information and #CHROM header line of a VCF file.
func ParseHeader(reader *bufio.Reader) (*Header, error) {
	hdr := NewHeader()
	hdr.Formats = nil
	first := true
	for {
		peek, err := reader.Peek(1)
		if err != nil {
			return nil, fmt.Errorf("truncated VCF header: %v", err)
		}
		if peek[0] != '#' {
			return nil, fmt.Errorf("missing #CHROM header line in VCF file")
		}
		line, err := getLine(reader)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(line, headerColumnsPrefix) {
			cols := strings.Split(line, "\t")
			if len(cols) > 8 {
				if cols[8] != "FORMAT" {
					return nil, fmt.Errorf("invalid VCF header line: %v", line)
				}
				hdr.Samples = cols[9:]
			}
			return hdr, nil
		}
		if first {
			if !strings.HasPrefix(line, "##fileformat=VCFv4.") {
				return nil, fmt.Errorf("missing or invalid ##fileformat meta line: %v", line)
			}
			hdr.FileFormat = line
			first = false
			continue
		}
		switch {
		case strings.HasPrefix(line, "##contig=<ID="):
			id := line[len("##contig=<ID="):]
			if i := strings.IndexAny(id, ",>"); i >= 0 {
				id = id[:i]
			}
			hdr.Contigs = append(hdr.Contigs, id)
			hdr.OtherMeta = append(hdr.OtherMeta, line)
		case strings.HasPrefix(line, "##FORMAT=<"):
			f, err := parseFormatMeta(line)
			if err != nil {
				return nil, err
			}
			hdr.Formats = append(hdr.Formats, f)
		default:
			hdr.OtherMeta = append(hdr.OtherMeta, line)
		}
	}
}

func parseFormatMeta(line string) (*FormatInformation, error) {
	body := strings.TrimSuffix(strings.TrimPrefix(line, "##FORMAT=<"), ">")
	f := &FormatInformation{}
	for _, field := range splitMetaFields(body) {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ID":
			f.ID = utils.Intern(kv[1])
		case "Number":
			f.Number = kv[1]
		case "Type":
			f.Type = kv[1]
		case "Description":
			f.Description = strings.Trim(kv[1], `"`)
		}
	}
	if f.ID == nil {
		return nil, fmt.Errorf("missing ID in ##FORMAT meta line: %v", line)
	}
	return f, nil
}

// splitMetaFields splits a "K1=V1,K2="a,b",K3=V3" style body on commas
// that are not inside double quotes.
func splitMetaFields(body string) (fields []string) {
	inQuotes := false
	start := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				fields = append(fields, body[start:i])
				start = i + 1
			}
		}
	}
	fields = append(fields, body[start:])
	return fields
}

// Format writes the meta-information and #CHROM header line.
func (h *Header) Format(out *bufio.Writer) error {
	if _, err := out.WriteString(h.FileFormat); err != nil {
		return err
	}
	if err := out.WriteByte('\n'); err != nil {
		return err
	}
	for _, m := range h.OtherMeta {
		if _, err := out.WriteString(m); err != nil {
			return err
		}
		if err := out.WriteByte('\n'); err != nil {
			return err
		}
	}
	for _, f := range h.Formats {
		if _, err := fmt.Fprintf(out, "##FORMAT=<ID=%v,Number=%v,Type=%v,Description=%q>\n", *f.ID, f.Number, f.Type, f.Description); err != nil {
			return err
		}
	}
	if _, err := out.WriteString(headerColumnsPrefix); err != nil {
		return err
	}
	if len(h.Samples) > 0 {
		if _, err := out.WriteString("\tFORMAT\t"); err != nil {
			return err
		}
		if _, err := out.WriteString(strings.Join(h.Samples, "\t")); err != nil {
			return err
		}
	}
	return out.WriteByte('\n')
}

func gtSeparator(phased bool) byte {
	if phased {
		return '|'
	}
	return '/'
}

func alleleString(a int32) string {
	if a < 0 {
		return "."
	}
	return strconv.FormatInt(int64(a), 10)
}

// ParseVariant parses one VCF data line into a Variant. Only the GT
// field is decoded per sample; any other FORMAT fields present on
// input are ignored — this system requires GT to be the hard-called
// input and does not round-trip arbitrary input annotations.
func ParseVariant(line string, nSamples int) (*Variant, error) {
	var sc StringScanner
	sc.Reset(line)

	v := &Variant{End: -1}
	var ok bool
	if v.Chrom, ok = sc.readUntilByte('\t'); !ok {
		return nil, fmt.Errorf("truncated VCF data line: %v", line)
	}
	posStr, ok := sc.readUntilByte('\t')
	if !ok {
		return nil, fmt.Errorf("truncated VCF data line: %v", line)
	}
	pos, err := strconv.ParseInt(posStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid POS %q in VCF data line: %v", posStr, line)
	}
	v.Pos = int32(pos)
	idField, ok := sc.readUntilByte('\t')
	if !ok {
		return nil, fmt.Errorf("truncated VCF data line: %v", line)
	}
	if idField != "." {
		v.ID = strings.Split(idField, ";")
	}
	if v.Ref, ok = sc.readUntilByte('\t'); !ok {
		return nil, fmt.Errorf("truncated VCF data line: %v", line)
	}
	altField, ok := sc.readUntilByte('\t')
	if !ok {
		return nil, fmt.Errorf("truncated VCF data line: %v", line)
	}
	if altField != "." {
		v.Alt = strings.Split(altField, ",")
	}
	if _, ok = sc.readUntilByte('\t'); !ok { // QUAL, ignored
		return nil, fmt.Errorf("truncated VCF data line: %v", line)
	}
	filterField, ok := sc.readUntilByte('\t')
	if !ok {
		return nil, fmt.Errorf("truncated VCF data line: %v", line)
	}
	if filterField != "." {
		v.Filter = strings.Split(filterField, ";")
	}
	var infoField string
	if nSamples > 0 {
		if infoField, ok = sc.readUntilByte('\t'); !ok {
			return nil, fmt.Errorf("truncated VCF data line: %v", line)
		}
	} else {
		infoField = sc.data[sc.index:]
		sc.index = len(sc.data)
	}
	if end, found := findInfoEnd(infoField); found {
		e, err := strconv.ParseInt(end, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid END in INFO field %q: %v", infoField, line)
		}
		v.End = int32(e)
	}
	if nSamples == 0 {
		return v, nil
	}
	formatField, ok := sc.readUntilByte('\t')
	if !ok {
		return nil, fmt.Errorf("truncated VCF data line, missing FORMAT: %v", line)
	}
	formatKeys := strings.Split(formatField, ":")
	if len(formatKeys) == 0 || formatKeys[0] != "GT" {
		return nil, fmt.Errorf("FORMAT field must start with GT: %v", line)
	}
	v.FormatKeys = make([]utils.Symbol, len(formatKeys))
	for i, k := range formatKeys {
		v.FormatKeys[i] = utils.Intern(k)
	}
	v.Genotype = make([]Genotype, nSamples)
	for i := 0; i < nSamples; i++ {
		var sample string
		if i == nSamples-1 {
			sample = sc.data[sc.index:]
			sc.index = len(sc.data)
		} else {
			sample, ok = sc.readUntilByte('\t')
			if !ok {
				return nil, fmt.Errorf("truncated VCF data line, missing sample %v: %v", i, line)
			}
		}
		gtStr := sample
		if j := strings.IndexByte(sample, ':'); j >= 0 {
			gtStr = sample[:j]
		}
		g, err := parseGT(gtStr)
		if err != nil {
			return nil, fmt.Errorf("%v, in sample %v of VCF data line: %v", err, i, line)
		}
		v.Genotype[i] = g
	}
	return v, nil
}

func findInfoEnd(info string) (string, bool) {
	for _, field := range strings.Split(info, ";") {
		if strings.HasPrefix(field, "END=") {
			return field[len("END="):], true
		}
	}
	return "", false
}

func parseGT(s string) (Genotype, error) {
	if s == "." || s == "./." || s == ".|." {
		return Genotype{Allele1: -1, Allele2: -1}, nil
	}
	sep := strings.IndexByte(s, '|')
	phased := sep >= 0
	if !phased {
		sep = strings.IndexByte(s, '/')
	}
	if sep < 0 {
		return Genotype{}, fmt.Errorf("invalid GT value %q: expected two alleles", s)
	}
	a1, err := parseAllele(s[:sep])
	if err != nil {
		return Genotype{}, err
	}
	a2, err := parseAllele(s[sep+1:])
	if err != nil {
		return Genotype{}, err
	}
	return Genotype{Phased: phased, Allele1: a1, Allele2: a2}, nil
}

func parseAllele(s string) (int32, error) {
	if s == "." {
		return -1, nil
	}
	a, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid GT allele %q", s)
	}
	return int32(a), nil
}

// Format writes one VCF data line, without a trailing newline.
func (v *Variant) Format(out *bufio.Writer, writeDS, writeAP, writeGP bool) error {
	idField := "."
	if len(v.ID) > 0 {
		idField = strings.Join(v.ID, ";")
	}
	altField := "."
	if len(v.Alt) > 0 {
		altField = strings.Join(v.Alt, ",")
	}
	filterField := "."
	if len(v.Filter) > 0 {
		filterField = strings.Join(v.Filter, ";")
	}
	info := "."
	if v.End >= 0 {
		info = fmt.Sprintf("END=%d", v.End)
	}
	if _, err := fmt.Fprintf(out, "%v\t%v\t%v\t%v\t%v\t.\t%v\t%v", v.Chrom, v.Pos, idField, v.Ref, altField, filterField, info); err != nil {
		return err
	}
	if len(v.Genotype) == 0 {
		return nil
	}
	format := "GT"
	if writeDS {
		format += ":DS"
	}
	if writeAP {
		format += ":AP1:AP2"
	}
	if writeGP {
		format += ":GP"
	}
	if _, err := fmt.Fprintf(out, "\t%v", format); err != nil {
		return err
	}
	for _, g := range v.Genotype {
		if _, err := fmt.Fprintf(out, "\t%v%c%v", alleleString(g.Allele1), gtSeparator(g.Phased), alleleString(g.Allele2)); err != nil {
			return err
		}
		if writeDS {
			if _, err := fmt.Fprintf(out, ":%.3f", g.Dose); err != nil {
				return err
			}
		}
		if writeAP {
			if _, err := fmt.Fprintf(out, ":%.3f:%.3f", g.AP1, g.AP2); err != nil {
				return err
			}
		}
		if writeGP {
			if _, err := fmt.Fprintf(out, ":%.3f,%.3f,%.3f", g.GP0, g.GP1, g.GP2); err != nil {
				return err
			}
		}
	}
	return nil
}

// InputFile represents a VCF file open for reading, transparently
// unwrapping BGZIP framing.
type InputFile struct {
	rc     io.ReadCloser
	Reader *bufio.Reader
}

// Open opens name for reading. If name is "-", input is read from stdin.
func Open(name string) (*InputFile, error) {
	var rc io.ReadCloser
	if name == "-" {
		rc = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("cannot open %v: %v", name, err)
		}
		rc = f
	}
	buffered := bufio.NewReader(rc)
	unwrapped := utils.HandleBGZF(buffered)
	return &InputFile{rc: rc, Reader: bufio.NewReader(unwrapped)}, nil
}

// Close closes the underlying file.
func (in *InputFile) Close() error {
	return in.rc.Close()
}

// OutputFile represents a VCF file open for writing, BGZIP-framed;
// the final emitted block is an empty EOF BGZIP block.
type OutputFile struct {
	wc     io.WriteCloser
	bgzf   *bgzf.Writer
	Writer *bufio.Writer
}

// Create creates name for writing. If name is "-", output is written to stdout.
func Create(name string) (*OutputFile, error) {
	var wc io.WriteCloser
	if name == "-" {
		wc = writeNopCloser{os.Stdout}
	} else {
		f, err := os.Create(name)
		if err != nil {
			return nil, fmt.Errorf("cannot create %v: %v", name, err)
		}
		wc = f
	}
	bw := bgzf.NewWriter(wc, -1)
	return &OutputFile{wc: wc, bgzf: bw, Writer: bufio.NewWriter(bw)}, nil
}

type writeNopCloser struct{ io.Writer }

func (writeNopCloser) Close() error { return nil }

// Close flushes buffered output, emits the terminating BGZIP EOF block,
// and closes the underlying file.
func (out *OutputFile) Close() error {
	if err := out.Writer.Flush(); err != nil {
		return err
	}
	if err := out.bgzf.Close(); err != nil {
		return err
	}
	return out.wc.Close()
}
