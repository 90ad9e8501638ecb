// Package main is the entry point for bank-agent, which generates bank
// statement parsers with an LLM and checks them against expected CSVs.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/insightdelivered/bank-statement-agent/internal/cli"
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			if !exitErr.Printed {
				fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.Err)
			}
			os.Exit(exitErr.Code)
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
