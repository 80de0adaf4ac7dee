package window

import (
	"fmt"

	"github.com/exascience/refphase/marker"
)

// Window is a contiguous, position-ordered run of markers from one
// chromosome, plus the overlap it shares with its neighbours.
type Window struct {
	Markers           *marker.Markers
	PrevOverlap       int
	NextOverlap       int
	LastWindowOnChrom bool
}

// NMarkers returns the number of markers in the window.
func (w *Window) NMarkers() int { return w.Markers.Len() }

// Record is one marker annotated with its genetic position, the unit
// the streamer accumulates windows by.
type Record struct {
	Marker marker.Marker
	CM     float64
}

// Source yields markers in ascending chromosome/position order, or
// (Record{}, false, nil) at end of input.
type Source interface {
	Next() (Record, bool, error)
}

// Streamer splits a Source into overlapping windows of WindowCM cM
// with OverlapCM cM of trailing overlap carried into the next window.
type Streamer struct {
	src       Source
	windowCM  float64
	overlapCM float64

	pending []Record // buffered records not yet emitted, across calls
	pendingPrevOverlap int
	done      bool
	lastChrom marker.Marker
	haveLast  bool
}

// NewStreamer constructs a Streamer. windowCM and overlapCM must
// satisfy 1.1*overlapCM < windowCM (enforced by the caller).
func NewStreamer(src Source, windowCM, overlapCM float64) *Streamer {
	return &Streamer{src: src, windowCM: windowCM, overlapCM: overlapCM}
}

// Next returns the next Window, or (nil, nil) once the source
// is exhausted.
func (s *Streamer) Next() (*Window, error) {
	if s.done {
		return nil, nil
	}

	var recs []Record
	recs = append(recs, s.pending...)
	prevOverlap := s.pendingPrevOverlap
	s.pending = nil
	s.pendingPrevOverlap = 0

	startCM := 0.0
	if len(recs) > 0 {
		startCM = recs[0].CM
	}

	lastOnChrom := false
	for {
		rec, ok, err := s.src.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			s.done = true
			lastOnChrom = true
			break
		}
		if len(recs) > 0 {
			prev := recs[len(recs)-1].Marker
			if prev.Chrom == rec.Marker.Chrom && marker.Less(rec.Marker, prev) {
				return nil, fmt.Errorf("window: non-monotone position at %v:%v", *rec.Marker.Chrom, rec.Marker.Pos)
			}
			if prev.Chrom != rec.Marker.Chrom {
				// Chromosome change: emit everything accumulated so far
				// with no trailing overlap, and stash rec to seed the
				// next chromosome's first window.
				s.pending = []Record{rec}
				lastOnChrom = true
				break
			}
		}
		if len(recs) == 0 {
			startCM = rec.CM
		}
		recs = append(recs, rec)
		if rec.CM-startCM > s.windowCM {
			break
		}
	}

	if len(recs) == 0 {
		return nil, fmt.Errorf("window: empty window emitted")
	}

	nextOverlap := 0
	if !lastOnChrom || len(s.pending) == 0 {
		cutCM := recs[len(recs)-1].CM - s.overlapCM
		i := len(recs)
		for i > 0 && recs[i-1].CM > cutCM {
			i--
		}
		if !lastOnChrom {
			nextOverlap = len(recs) - i
			overlapRecs := make([]Record, nextOverlap)
			copy(overlapRecs, recs[i:])
			s.pending = append(overlapRecs, s.pending...)
			s.pendingPrevOverlap = nextOverlap
		}
	}

	markers := make([]marker.Marker, len(recs))
	for i, r := range recs {
		markers[i] = r.Marker
	}
	return &Window{
		Markers:           marker.NewMarkers(markers),
		PrevOverlap:       prevOverlap,
		NextOverlap:       nextOverlap,
		LastWindowOnChrom: lastOnChrom,
	}, nil
}
