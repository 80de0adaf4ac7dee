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

// Package vcf implements the text VCF external interface:
// enough of VCF 4.x to read hard-called, possibly-phased GT records and
// to write phased output records with optional DS/AP1/AP2/GP fields.
// It intentionally does not implement the whole VCF INFO/FORMAT type
// system: this system's core is the phasing engine, and VCF text I/O
// is an external collaborator whose only job is to move GT data in
// and spliced, phased GT data (plus imputation dosages) out.
package vcf

import (
	"github.com/exascience/refphase/utils"
)

// FileFormatVersionLine is the meta line every refphase VCF output starts with.
const FileFormatVersionLine = "##fileformat=VCFv4.2"

// GT is the interned FORMAT key for the genotype field, required to
// be present and to be the first FORMAT field on read.
var GT = utils.Intern("GT")

// END is the interned INFO key for the end-of-record position of
// non-point markers (structural/symbolic ALTs).
var END = utils.Intern("END")

var (
	DS  = utils.Intern("DS")
	AP1 = utils.Intern("AP1")
	AP2 = utils.Intern("AP2")
	GP  = utils.Intern("GP")
)

// FormatInformation describes one declared FORMAT meta line.
type FormatInformation struct {
	ID          utils.Symbol
	Number      string
	Type        string
	Description string
}

// Header is the meta-information and column section of a VCF file.
type Header struct {
	FileFormat string
	Contigs    []string
	Formats    []*FormatInformation
	OtherMeta  []string // meta lines preserved verbatim for round-trip fidelity
	Samples    []string
}

// NewHeader creates an empty Header with the GT format predeclared, as
// every VCF this system reads or writes carries hard-called genotypes.
func NewHeader() *Header {
	return &Header{
		FileFormat: FileFormatVersionLine,
		Formats: []*FormatInformation{
			{ID: GT, Number: "1", Type: "String", Description: "Genotype"},
		},
	}
}

// HasFormat reports whether the header already declares the given FORMAT id.
func (h *Header) HasFormat(id utils.Symbol) bool {
	for _, f := range h.Formats {
		if f.ID == id {
			return true
		}
	}
	return false
}

// Genotype is the per-sample GT field of a Variant, plus whatever other
// per-sample FORMAT fields were written for it (only used on output).
type Genotype struct {
	Phased           bool
	Allele1, Allele2 int32 // -1 for missing
	Dose             float64
	HasDose          bool
	AP1, AP2         float64
	HasAP            bool
	GP0, GP1, GP2    float64
	HasGP            bool
}

// Variant is one data line of a VCF file.
type Variant struct {
	Chrom      string
	Pos        int32
	ID         []string
	Ref        string
	Alt        []string
	End        int32 // -1 if absent
	Filter     []string
	FormatKeys []utils.Symbol
	Genotype   []Genotype
}
