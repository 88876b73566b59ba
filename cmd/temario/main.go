// Package main provides the entry point for the temario CLI.
package main

import (
	"os"

	"github.com/ecervera/temario/cmd/temario/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
