// Command tskcat is the CLI front end for the image-cataloguing
// engine: opening or creating a case, ingesting an image into it, and
// listing the errors an ingest accumulated.
package main

import (
	"fmt"
	"os"

	"github.com/tskcat/engine/cmd/tskcat/tskcmd"
)

// exitCoder is implemented by errors that carry a specific process exit
// code (tskcmd.exitError); anything else that escapes Execute is a usage
// or setup failure, reported with a generic non-zero code.
type exitCoder interface {
	ExitCode() int
}

func main() {
	if err := tskcmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ec, ok := err.(exitCoder); ok {
			os.Exit(ec.ExitCode())
		}
		os.Exit(2)
	}
}
