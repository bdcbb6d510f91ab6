// Package main provides the entry point for the supervision CLI.
package main

import (
	"fmt"
	"os"

	"github.com/opencode-ai/supervision/cmd/supervisor/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
