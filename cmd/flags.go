package cmd

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Flags holds every refphase CLI parameter, parsed from
// key=value tokens rather than flag.FlagSet's -flag value syntax,
// since that is the wire format refphase accepts.
type Flags struct {
	Out            string
	GT             string
	Ref            string
	Map            string
	Chrom          string
	ExcludeSamples string
	ExcludeMarkers string

	Burnin      int
	Iterations  int
	PhaseStates int
	PhaseStepCM float64
	Rare        float64
	IBS2MinCM   float64

	Impute     bool
	ImpStates  int
	ImpSegment float64
	ImpStepCM  float64
	ImpNSteps  int
	ClusterCM  float64
	AP         bool
	GP         bool

	Ne        float64
	Err       float64
	WindowCM  float64
	OverlapCM float64
	Seed      int64
	NThreads  int
	BufferCM  float64 // reserved for a future batched PBWT sweep; has no effect on output today

	Log     string
	Profile string
	Timed   bool
}

// DefaultFlags returns the CLI parameter defaults.
func DefaultFlags() Flags {
	return Flags{
		Burnin:      6,
		Iterations:  12,
		PhaseStates: 280,
		PhaseStepCM: 0.006,
		Rare:        0.0015,
		IBS2MinCM:   2.0,

		Impute:     true,
		ImpStates:  1600,
		ImpSegment: 6.0,
		ImpStepCM:  0.1,
		ImpNSteps:  7,
		ClusterCM:  0.005,

		Ne:        1e6,
		WindowCM:  40,
		OverlapCM: 4,
		Seed:      -99999,
		BufferCM:  0.6,
	}
}

// fieldSetter assigns one token's value into f.
type fieldSetter func(f *Flags, value string) error

var setters = map[string]fieldSetter{
	"out":            func(f *Flags, v string) error { f.Out = v; return nil },
	"gt":             func(f *Flags, v string) error { f.GT = v; return nil },
	"ref":            func(f *Flags, v string) error { f.Ref = v; return nil },
	"map":            func(f *Flags, v string) error { f.Map = v; return nil },
	"chrom":          func(f *Flags, v string) error { f.Chrom = v; return nil },
	"excludesamples": func(f *Flags, v string) error { f.ExcludeSamples = v; return nil },
	"excludemarkers": func(f *Flags, v string) error { f.ExcludeMarkers = v; return nil },

	"burnin":       intSetter(func(f *Flags) *int { return &f.Burnin }),
	"iterations":   intSetter(func(f *Flags) *int { return &f.Iterations }),
	"phase-states": intSetter(func(f *Flags) *int { return &f.PhaseStates }),
	"phase-step":   floatSetter(func(f *Flags) *float64 { return &f.PhaseStepCM }),
	"rare":         floatSetter(func(f *Flags) *float64 { return &f.Rare }),
	"ibs2min":      floatSetter(func(f *Flags) *float64 { return &f.IBS2MinCM }),

	"impute":      boolSetter(func(f *Flags) *bool { return &f.Impute }),
	"imp-states":  intSetter(func(f *Flags) *int { return &f.ImpStates }),
	"imp-segment": floatSetter(func(f *Flags) *float64 { return &f.ImpSegment }),
	"imp-step":    floatSetter(func(f *Flags) *float64 { return &f.ImpStepCM }),
	"imp-nsteps":  intSetter(func(f *Flags) *int { return &f.ImpNSteps }),
	"cluster":     floatSetter(func(f *Flags) *float64 { return &f.ClusterCM }),
	"ap":          boolSetter(func(f *Flags) *bool { return &f.AP }),
	"gp":          boolSetter(func(f *Flags) *bool { return &f.GP }),

	"ne":       floatSetter(func(f *Flags) *float64 { return &f.Ne }),
	"err":      floatSetter(func(f *Flags) *float64 { return &f.Err }),
	"window":   floatSetter(func(f *Flags) *float64 { return &f.WindowCM }),
	"overlap":  floatSetter(func(f *Flags) *float64 { return &f.OverlapCM }),
	"seed":     int64Setter(func(f *Flags) *int64 { return &f.Seed }),
	"nthreads": intSetter(func(f *Flags) *int { return &f.NThreads }),
	"buffer":   floatSetter(func(f *Flags) *float64 { return &f.BufferCM }),

	"log":     func(f *Flags, v string) error { f.Log = v; return nil },
	"profile": func(f *Flags, v string) error { f.Profile = v; return nil },
	"timed":   boolSetter(func(f *Flags) *bool { return &f.Timed }),
}

func intSetter(field func(*Flags) *int) fieldSetter {
	return func(f *Flags, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(f) = n
		return nil
	}
}

func int64Setter(field func(*Flags) *int64) fieldSetter {
	return func(f *Flags, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*field(f) = n
		return nil
	}
}

func floatSetter(field func(*Flags) *float64) fieldSetter {
	return func(f *Flags, v string) error {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(f) = n
		return nil
	}
}

func boolSetter(field func(*Flags) *bool) fieldSetter {
	return func(f *Flags, v string) error {
		if v == "" {
			*field(f) = true
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(f) = b
		return nil
	}
}

// ParseFlags parses a key=value (or bare boolean key) argument list
// into Flags. Unknown keys are fatal, printing one diagnostic and
// exiting rather than panicking.
func ParseFlags(args []string) Flags {
	f := DefaultFlags()
	for _, arg := range args {
		switch arg {
		case "-h", "--h", "-help", "--help", "help":
			fmt.Fprint(os.Stderr, HelpMessage)
			os.Exit(0)
		case "-help-extended", "--help-extended", "help-extended":
			fmt.Fprint(os.Stderr, HelpMessage)
			os.Exit(0)
		}
		key, value := arg, ""
		if i := strings.IndexByte(arg, '='); i >= 0 {
			key, value = arg[:i], arg[i+1:]
		}
		setter, ok := setters[key]
		if !ok {
			log.Println("Error: Unrecognized parameter", key)
			fmt.Fprint(os.Stderr, HelpMessage)
			os.Exit(1)
		}
		if err := setter(&f, value); err != nil {
			log.Println("Error: Invalid value for parameter", key, ":", err)
			os.Exit(1)
		}
	}
	return f
}

// Validate checks the cross-parameter constraints and the
// input-file existence checks (checkExist) before any real work starts.
func (f *Flags) Validate() bool {
	ok := true
	if f.Out == "" {
		log.Println("Error: Missing required parameter out=<prefix>.")
		ok = false
	}
	if f.GT != "" && !checkExist("gt", f.GT) {
		ok = false
	}
	if f.Ref != "" && !checkExist("ref", f.Ref) {
		ok = false
	}
	if f.Map != "" && !checkExist("map", f.Map) {
		ok = false
	}
	if f.GT == "" && f.Ref == "" {
		log.Println("Error: At least one of gt= or ref= must be given.")
		ok = false
	}
	if 1.1*f.OverlapCM >= f.WindowCM {
		log.Println("Error: overlap must satisfy 1.1*overlap < window.")
		ok = false
	}
	if f.Out != "" {
		if info, err := os.Stat(f.Out); err == nil && info.IsDir() {
			log.Println("Error: out= must not name a directory.")
			ok = false
		}
		for _, in := range []string{f.GT, f.Ref} {
			if in != "" && sameFile(in, f.Out) {
				log.Println("Error: out= must not alias an input file.")
				ok = false
			}
		}
	}
	return ok
}

func sameFile(a, b string) bool {
	ai, aerr := os.Stat(a)
	bi, berr := os.Stat(b)
	return aerr == nil && berr == nil && os.SameFile(ai, bi)
}
