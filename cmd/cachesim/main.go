// Package main provides the entry point for cachesim.
// cachesim replays a memory access trace on a set-associative cache model
// and reports miss rate, cycles and IPC.
package main

import (
	"os"

	"github.com/tebeka/atexit"
)

func main() {
	cmd := newRootCommand(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
