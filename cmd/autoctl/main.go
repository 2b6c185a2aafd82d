// Package main is the entry point for the autoctl CLI.
// The CLI is the operator terminal tool for the autoplane scheduler API.
package main

import (
	"autoplane/cmd/autoctl/cmd"
	"os"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
