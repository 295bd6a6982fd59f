package main

// ============================================================================
// Responsibilities:
// 1. CLI application entry point
// 2. Build and execute the command tree
// 3. Top-level error handling and panic recovery
// ============================================================================

import (
	"fmt"
	"os"

	"github.com/ruvltra/ruvltra-go/internal/cli"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
