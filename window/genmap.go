// Package window implements the sliding-window marker streamer and
// the per-window marker index mapping.
package window

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/exascience/refphase/utils"
)

// GeneticMap holds, per chromosome, (bp, cM) pairs with strictly
// increasing bp and non-decreasing cM, read from a PLINK-style map
// file, and answers linear-interpolation queries. There is no such
// parser among the example repos; this is plain bufio/strings
// scanning.
type GeneticMap struct {
	bp map[utils.Symbol][]int32
	cm map[utils.Symbol][]float64
}

// ReadGeneticMap parses "chrom id cM bp" whitespace-separated lines.
func ReadGeneticMap(r io.Reader) (*GeneticMap, error) {
	gm := &GeneticMap{bp: make(map[utils.Symbol][]int32), cm: make(map[utils.Symbol][]float64)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("map file: line %d: expected 4 columns, got %d", lineNo, len(fields))
		}
		chrom := utils.Intern(fields[0])
		cm, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("map file: line %d: invalid cM value %q", lineNo, fields[2])
		}
		bp, err := strconv.ParseInt(fields[3], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("map file: line %d: invalid bp value %q", lineNo, fields[3])
		}
		bps := gm.bp[chrom]
		if n := len(bps); n > 0 {
			if int32(bp) <= bps[n-1] {
				return nil, fmt.Errorf("map file: line %d: bp not strictly increasing on chromosome %s", lineNo, fields[0])
			}
			if cm < gm.cm[chrom][n-1] {
				return nil, fmt.Errorf("map file: line %d: cM not increasing on chromosome %s", lineNo, fields[0])
			}
		}
		gm.bp[chrom] = append(bps, int32(bp))
		gm.cm[chrom] = append(gm.cm[chrom], cm)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return gm, nil
}

// CM returns the genetic position, in cM, of the given chromosome/bp
// position by linear interpolation (or extrapolation at either end
// using the nearest map interval's slope).
func (gm *GeneticMap) CM(chrom utils.Symbol, pos int32) float64 {
	bps := gm.bp[chrom]
	cms := gm.cm[chrom]
	if len(bps) == 0 {
		// No map entries for this chromosome: fall back to a constant
		// 1 cM/Mb rate measured from position 0.
		return float64(pos) / 1e6
	}
	i := sort.Search(len(bps), func(i int) bool { return bps[i] >= pos })
	switch {
	case i == 0:
		if len(bps) == 1 {
			return cms[0]
		}
		slope := (cms[1] - cms[0]) / float64(bps[1]-bps[0])
		return cms[0] + slope*float64(pos-bps[0])
	case i == len(bps):
		if len(bps) == 1 {
			return cms[0]
		}
		j := len(bps) - 1
		slope := (cms[j] - cms[j-1]) / float64(bps[j]-bps[j-1])
		return cms[j] + slope*float64(pos-bps[j])
	case bps[i] == pos:
		return cms[i]
	default:
		slope := (cms[i] - cms[i-1]) / float64(bps[i]-bps[i-1])
		return cms[i-1] + slope*float64(pos-bps[i-1])
	}
}
