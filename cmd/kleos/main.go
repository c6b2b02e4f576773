// Package main provides the kleos CLI, a command-line client for MindsDB.
package main

import (
	"os"

	"github.com/kleos-cli/kleos/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
