// Package main provides the entry point for the nichicrawl CLI.
package main

import (
	"fmt"
	"os"

	"github.com/yokai-gen/nichicrawl/cmd/nichicrawl/cmd"
	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, crawlerr.FormatForCLI(err))
		os.Exit(1)
	}
}
