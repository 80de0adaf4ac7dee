package cmd

import (
	"fmt"
	"log"
	"runtime"
	"strconv"
	"strings"

	"github.com/exascience/refphase/fixedphase"
	"github.com/exascience/refphase/genotype"
	"github.com/exascience/refphase/marker"
	"github.com/exascience/refphase/phase"
	"github.com/exascience/refphase/vcf"
	"github.com/exascience/refphase/window"
)

// Phase runs the whole pipeline named by f: load panels, apply the
// sample/marker filters, slide the window streamer across the target
// chromosome(s), phase and impute each window, and splice the results
// into one phased VCF.
func Phase(f Flags) {
	if f.Log != "" {
		setLogOutput(f.Log)
	}
	timedRun(f.Timed, f.Profile, "Phasing", 1, func() { runPhase(f) })
}

func runPhase(f Flags) {
	if f.NThreads > 0 {
		runtime.GOMAXPROCS(f.NThreads)
	}

	gm, err := loadGeneticMap(f.Map)
	if err != nil {
		log.Fatalln("Error reading map file:", err)
	}

	var target, ref *panel
	if f.GT != "" {
		target, err = loadVCFPanel(f.GT)
		if err != nil {
			log.Fatalln("Error reading gt file:", err)
		}
	}
	if f.Ref != "" {
		ref, err = loadRefPanel(f.Ref)
		if err != nil {
			log.Fatalln("Error reading ref file:", err)
		}
	}

	if target == nil {
		// No target genotypes: there is nothing to phase, so gt=""+ref=
		// degrades to a panel-format conversion utility (VCF<->bref3);
		// see DESIGN.md's "gt=\"\" conversion mode" entry.
		convertPanel(ref, f.Out)
		return
	}

	if dup := firstDuplicate(target.Samples); dup != "" {
		log.Fatalln("Error: sample ID collision:", dup)
	}

	if ref != nil {
		checkEqualMarkerSets(target.Markers, ref.Markers)
	}

	keep, err := filteredMarkerIndices(target.Markers, f.Chrom, f.ExcludeMarkers)
	if err != nil {
		log.Fatalln("Error applying marker filters:", err)
	}
	target.Markers, _ = target.Markers.Restrict(keep)
	target.GT = genotype.Restrict(target.GT, keep)
	if ref != nil {
		ref.Markers, _ = ref.Markers.Restrict(keep)
		ref.GT = genotype.Restrict(ref.GT, keep)
	}
	if target.Markers.Len() == 0 {
		log.Fatalln("Error: no markers remain after filtering.")
	}

	if f.ExcludeSamples != "" {
		excluded, err := loadExcludeList(f.ExcludeSamples)
		if err != nil {
			log.Fatalln("Error reading excludesamples file:", err)
		}
		var keepSamples []int
		var keepNames []string
		for s, name := range target.Samples {
			if !excluded[name] {
				keepSamples = append(keepSamples, s)
				keepNames = append(keepNames, name)
			}
		}
		target.GT = genotype.RestrictSamples(target.GT, keepSamples)
		target.Samples = keepNames
	}
	if target.GT.NSamples() == 0 {
		log.Fatalln("Error: no samples remain after excludesamples filtering.")
	}

	cmAt := globalCMFunc(target.Markers, gm)
	cm := make([]float64, target.Markers.Len())
	for i := range cm {
		cm[i] = cmAt(i)
	}

	out, err := vcf.Create(f.Out)
	if err != nil {
		log.Fatalln("Error creating output file:", err)
	}
	defer out.Close()

	hdr := outputHeader(target.Samples, f)
	if err := hdr.Format(out.Writer); err != nil {
		log.Fatalln("Error writing VCF header:", err)
	}

	src := &markerSource{ms: target.Markers, cm: cm}
	streamer := window.NewStreamer(src, f.WindowCM, f.OverlapCM)

	var prevOverlapGT genotype.GT
	var prevOverlapCount int
	cursor := 0
	windowIdx := 0
	for {
		win, err := streamer.Next()
		if err != nil {
			log.Fatalln("Error:", err)
		}
		if win == nil {
			break
		}
		n := win.NMarkers()

		targSlice := genotype.Restrict(target.GT, rangeIndices(cursor, cursor+n))
		var refSlice genotype.GT
		if ref != nil {
			refSlice = genotype.Restrict(ref.GT, rangeIndices(cursor, cursor+n))
		}

		winCMAt := func(m int) float64 { return cm[cursor+m] }

		fpd, err := fixedphase.Build(targSlice, prevOverlapGT, prevOverlapCount, refSlice, winCMAt, f.Rare, f.IBS2MinCM)
		if err != nil {
			log.Fatalln("Error:", err)
		}

		params := phase.Params{
			Burnin:      f.Burnin,
			Iterations:  f.Iterations,
			PhaseStates: f.PhaseStates,
			PhaseStepCM: f.PhaseStepCM,
			ScaleFactor: 1.0,
			Rare:        f.Rare,
			Ne:          f.Ne,
			Err:         float32(f.Err),
			Seed:        f.Seed + int64(windowIdx)*1_000_000_007,
			BufferCM:    f.BufferCM,
			IBS2MinCM:   f.IBS2MinCM,
			ImpStepCM:   f.ImpStepCM,
			ImpNSteps:   f.ImpNSteps,
		}
		if !f.Impute {
			// Imputation off: run stage-1 only by presenting every marker
			// as the high-frequency subset, so RunWindow's nHi==nMarkers
			// short-circuit skips stage-2 entirely.
			fpd.HiFreqMarkers = nil
			fpd.HiFreqGT = fpd.GT
			fpd.HiFreqRefGT = fpd.RefGT
		}

		result := phase.RunWindow(fpd, refSlice, params)
		resGT := resultGT(win.Markers, result, len(target.Samples))

		allTrue := make([]bool, n)
		for i := range allTrue {
			allTrue[i] = true
		}
		mi := window.NewMarkerIndices(allTrue, win.PrevOverlap, win.NextOverlap, n)
		outStart, outEnd := mi.PrevSplice, mi.NextSplice
		if win.LastWindowOnChrom {
			// The literal nextSplice formula assumes a next window exists
			// to hand overlap to; on the true last window of a
			// chromosome there is none, so emit through the end instead
			// of trusting nextSplice's (nMarkers+0)/2-style midpoint.
			outEnd = n
		}

		if err := writeWindow(out, win.Markers, result, outStart, outEnd, f); err != nil {
			log.Fatalln("Error writing output:", err)
		}

		if win.NextOverlap > 0 {
			prevOverlapGT = genotype.Restrict(resGT, rangeIndices(n-win.NextOverlap, n))
			prevOverlapCount = win.NextOverlap
		} else {
			prevOverlapGT = nil
			prevOverlapCount = 0
		}
		cursor += n - win.NextOverlap
		windowIdx++
	}
}

// markerSource streams a fully materialized target Markers list as a
// window.Source, one record per marker.
type markerSource struct {
	ms *marker.Markers
	cm []float64
	i  int
}

func (s *markerSource) Next() (window.Record, bool, error) {
	if s.i >= s.ms.Len() {
		return window.Record{}, false, nil
	}
	rec := window.Record{Marker: s.ms.At(s.i), CM: s.cm[s.i]}
	s.i++
	return rec, true, nil
}

// globalCMFunc returns a per-marker cM lookup: gm's linear
// interpolation if a genetic map was given, otherwise the same flat
// pos/1e6 fallback GeneticMap.CM uses for chromosomes it has no
// entries for.
func globalCMFunc(ms *marker.Markers, gm *window.GeneticMap) func(i int) float64 {
	if gm == nil {
		return func(i int) float64 { return float64(ms.At(i).Pos) / 1e6 }
	}
	return func(i int) float64 {
		m := ms.At(i)
		return gm.CM(m.Chrom, m.Pos)
	}
}

func rangeIndices(a, b int) []int {
	idx := make([]int, b-a)
	for i := range idx {
		idx[i] = a + i
	}
	return idx
}

// checkEqualMarkerSets enforces the simplified equal-marker-set
// contract this driver assumes between target and reference panels;
// see DESIGN.md for why the fully general MarkerIndices superset
// plumbing is not exercised here.
func checkEqualMarkerSets(target, ref *marker.Markers) {
	if target.Len() != ref.Len() {
		log.Fatalln("Error: gt and ref marker counts disagree:", target.Len(), "vs", ref.Len())
	}
	for i := 0; i < target.Len(); i++ {
		a, b := target.At(i), ref.At(i)
		if a.Chrom != b.Chrom || a.Pos != b.Pos || len(a.Alleles) != len(b.Alleles) {
			log.Fatalln("Error: gt and ref marker lists disagree at index", i)
		}
		for j := range a.Alleles {
			if a.Alleles[j] != b.Alleles[j] {
				log.Fatalln("Error: gt and ref marker lists disagree at index", i)
			}
		}
	}
}

func firstDuplicate(names []string) string {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return n
		}
		seen[n] = true
	}
	return ""
}

// parseChromFilter parses "chrom" or "chrom:start-end", 1-based inclusive bounds.
func parseChromFilter(spec string) (chrom string, start, end int32, hasRange bool, err error) {
	if spec == "" {
		return "", 0, 0, false, nil
	}
	parts := strings.SplitN(spec, ":", 2)
	chrom = parts[0]
	if len(parts) == 1 {
		return chrom, 0, 0, false, nil
	}
	bounds := strings.SplitN(parts[1], "-", 2)
	if len(bounds) != 2 {
		return "", 0, 0, false, fmt.Errorf("chrom=%v: expected chrom:start-end", spec)
	}
	s, err1 := strconv.ParseInt(bounds[0], 10, 32)
	e, err2 := strconv.ParseInt(bounds[1], 10, 32)
	if err1 != nil || err2 != nil {
		return "", 0, 0, false, fmt.Errorf("chrom=%v: invalid start/end", spec)
	}
	return chrom, int32(s), int32(e), true, nil
}

// excludedMarker reports whether m's ID or "chrom:pos" form appears in
// excluded, trying the ID first since most marker files carry one.
func excludedMarker(m marker.Marker, excluded map[string]bool) bool {
	for _, id := range m.ID {
		if excluded[id] {
			return true
		}
	}
	return excluded[fmt.Sprintf("%v:%v", *m.Chrom, m.Pos)]
}

// filteredMarkerIndices computes the keep-list for target given the
// chrom= range filter and an excludemarkers= file.
func filteredMarkerIndices(ms *marker.Markers, chromSpec, excludeMarkersPath string) ([]int, error) {
	chrom, start, end, hasRange, err := parseChromFilter(chromSpec)
	if err != nil {
		return nil, err
	}
	excluded, err := loadExcludeList(excludeMarkersPath)
	if err != nil {
		return nil, err
	}
	var keep []int
	for i := 0; i < ms.Len(); i++ {
		m := ms.At(i)
		if chrom != "" && *m.Chrom != chrom {
			continue
		}
		if hasRange && (m.Pos < start || m.Pos > end) {
			continue
		}
		if excludedMarker(m, excluded) {
			continue
		}
		keep = append(keep, i)
	}
	return keep, nil
}

// outputHeader builds the VCF header this driver writes, declaring
// DS/AP1/AP2/GP only when the corresponding data will actually be
// emitted.
func outputHeader(samples []string, f Flags) *vcf.Header {
	hdr := vcf.NewHeader()
	hdr.Samples = samples
	if f.Impute {
		hdr.Formats = append(hdr.Formats, &vcf.FormatInformation{ID: vcf.DS, Number: "1", Type: "Float", Description: "Estimated alt allele dose"})
	}
	if f.AP {
		hdr.Formats = append(hdr.Formats,
			&vcf.FormatInformation{ID: vcf.AP1, Number: "1", Type: "Float", Description: "Estimated haplotype 1 allele probability"},
			&vcf.FormatInformation{ID: vcf.AP2, Number: "1", Type: "Float", Description: "Estimated haplotype 2 allele probability"},
		)
	}
	if f.GP {
		hdr.Formats = append(hdr.Formats, &vcf.FormatInformation{ID: vcf.GP, Number: "3", Type: "Float", Description: "Estimated genotype probabilities"})
	}
	return hdr
}

// resultGT wraps a phase.Result as a genotype.GT, phased at every
// marker, so it can be spliced into the next window's fixedphase.Build
// call the same way a loaded reference panel is.
func resultGT(ms *marker.Markers, res *phase.Result, nSamples int) genotype.GT {
	recs := make([]*genotype.GTRec, ms.Len())
	for m := range recs {
		rec := genotype.NewGTRec(nSamples)
		for s := 0; s < nSamples; s++ {
			rec.Allele1[s] = res.H1[s][m]
			rec.Allele2[s] = res.H2[s][m]
			rec.Phased[s] = true
		}
		recs[m] = rec
	}
	return genotype.NewBasicGT(ms, recs)
}

// writeWindow formats markers [outStart, outEnd) of win as VCF data
// lines for every target sample.
func writeWindow(out *vcf.OutputFile, ms *marker.Markers, res *phase.Result, outStart, outEnd int, f Flags) error {
	for m := outStart; m < outEnd; m++ {
		mk := ms.At(m)
		v := &vcf.Variant{
			Chrom: *mk.Chrom,
			Pos:   mk.Pos,
			ID:    mk.ID,
			Ref:   mk.Alleles[0],
			Alt:   mk.Alleles[1:],
			End:   mk.End,
		}
		v.Genotype = make([]vcf.Genotype, len(res.H1))
		for s := range v.Genotype {
			a1, a2 := res.H1[s][m], res.H2[s][m]
			g := vcf.Genotype{Phased: true, Allele1: a1, Allele2: a2}
			if f.Impute {
				g.Dose = dose(a1, a2)
				g.HasDose = true
			}
			if f.AP {
				g.AP1, g.AP2 = ap(a1), ap(a2)
				g.HasAP = true
			}
			if f.GP {
				g.GP0, g.GP1, g.GP2 = gp(a1, a2)
				g.HasGP = true
			}
			v.Genotype[s] = g
		}
		if err := v.Format(out.Writer, f.Impute, f.AP, f.GP); err != nil {
			return err
		}
		if err := out.Writer.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

// dose, ap and gp derive VCF dosage/probability fields from the final
// hard-phased alleles: this engine's output carries no surviving posterior
// once phasing completes, so these are the deterministic degenerate
// case of the usual probabilistic fields rather than genuine
// uncertainty estimates (documented in DESIGN.md).
func dose(a1, a2 int32) float64 {
	return float64(nonRef(a1) + nonRef(a2))
}

func ap(a int32) float64 {
	if nonRef(a) > 0 {
		return 1.0
	}
	return 0.0
}

func gp(a1, a2 int32) (gp0, gp1, gp2 float64) {
	switch nonRef(a1) + nonRef(a2) {
	case 0:
		return 1, 0, 0
	case 1:
		return 0, 1, 0
	default:
		return 0, 0, 1
	}
}

func nonRef(a int32) int32 {
	if a <= 0 {
		return 0
	}
	return 1
}
