// Package main provides the entry point for cachesim.
// cachesim is a trace-driven set-associative cache simulator.
//
// For the full CLI, use: go run ./cmd/cachesim
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	printUsage(os.Stdout, len(os.Args) > 1)
}

// printUsage points at the real CLI, which owns the option list.
func printUsage(w io.Writer, gotArgs bool) {
	fmt.Fprintln(w, "cachesim - Set-Associative Cache Simulator")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: go run ./cmd/cachesim [options] <trace-file>")
	fmt.Fprintln(w, "Run 'go run ./cmd/cachesim --help' for the available options.")

	if gotArgs {
		fmt.Fprintln(w, "\nNote: You provided arguments. Use 'go run ./cmd/cachesim' instead.")
	}
}
