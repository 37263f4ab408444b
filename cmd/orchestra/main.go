// Package main provides the orchestra command-line client.
package main

import (
	"os"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
