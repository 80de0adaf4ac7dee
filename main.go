// refphase statistically phases and imputes a target genotype panel
// against an optional reference panel using a Li-Stephens haploid HMM
// driven by PBWT neighbour search.
//
// Please see https://github.com/exascience/refphase for a
// documentation of the tool.
package main

import (
	"fmt"
	"os"

	"github.com/exascience/refphase/cmd"
)

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)

	f := cmd.ParseFlags(os.Args[1:])
	if !f.Validate() {
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		os.Exit(1)
	}

	cmd.Phase(f)
}
