package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
)

// startProfiling starts CPU profiling when cpuPath is set. The returned
// function stops it and writes a heap profile when memPath is set.
func startProfiling(cpuPath, memPath string) (func() error, error) {
	var cpuFile *os.File

	if cpuPath != "" {
		f, err := os.Create(cpuPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create CPU profile: %w", err)
		}

		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to start CPU profile: %w", err)
		}
		cpuFile = f
	}

	stop := func() error {
		if cpuFile != nil {
			pprof.StopCPUProfile()
			if err := cpuFile.Close(); err != nil {
				return fmt.Errorf("failed to close CPU profile: %w", err)
			}
		}

		if memPath == "" {
			return nil
		}

		f, err := os.Create(memPath)
		if err != nil {
			return fmt.Errorf("failed to create memory profile: %w", err)
		}
		defer func() { _ = f.Close() }()

		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}

		return nil
	}

	return stop, nil
}
