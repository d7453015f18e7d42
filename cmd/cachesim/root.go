package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cachesim/recording"
	"github.com/sarchlab/cachesim/session"
	"github.com/sarchlab/cachesim/timing/cache"
	"github.com/sarchlab/cachesim/timing/stats"
	"github.com/sarchlab/cachesim/trace"
)

type options struct {
	configPath    string
	blockSize     int
	associativity int
	capacity      int
	missPenalty   uint64
	wbPenalty     uint64

	accumulateWritebacks bool
	skipMalformed        bool
	prefetch             int
	recordPath           string
	verify               bool
	verbose              bool
	cpuProfile           string
	memProfile           string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	defaults := cache.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "cachesim [flags] <trace-file>",
		Short: "Simulate a set-associative cache over a memory access trace.",
		Long: `cachesim replays a memory access trace on a set-associative ` +
			`cache with LRU replacement and reports the miss rate, the ` +
			`estimated cycle count and the IPC.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stopProfiling, err := startProfiling(opts.cpuProfile, opts.memProfile)
			if err != nil {
				return err
			}

			runErr := run(cmd, opts, args[0], stdout, stderr)
			if err := stopProfiling(); err != nil && runErr == nil {
				return err
			}

			return runErr
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "",
		"Path to a cache configuration file (JSON, or KEY=VALUE with .env extension)")
	f.IntVar(&opts.blockSize, "block-size", defaults.BlockSize, "Block size in bytes")
	f.IntVar(&opts.associativity, "associativity", defaults.Associativity, "Lines per set")
	f.IntVar(&opts.capacity, "capacity", defaults.Size, "Cache capacity in bytes")
	f.Uint64Var(&opts.missPenalty, "miss-penalty", defaults.MissPenalty,
		"Cycles charged per miss")
	f.Uint64Var(&opts.wbPenalty, "writeback-penalty", defaults.DirtyWritebackPenalty,
		"Cycles charged per dirty write-back")
	f.BoolVar(&opts.accumulateWritebacks, "accumulate-writebacks", false,
		"Charge every dirty write-back instead of only the last access's")
	f.BoolVar(&opts.skipMalformed, "skip-malformed", false,
		"Skip malformed trace lines instead of aborting")
	f.IntVar(&opts.prefetch, "prefetch", 0,
		"Parse the trace ahead in the background, queueing up to this many records")
	f.StringVar(&opts.recordPath, "record", "",
		"Record every access to <path>.sqlite3")
	f.BoolVar(&opts.verify, "verify", false,
		"Cross-check every access against the reference LRU model")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
	f.StringVar(&opts.cpuProfile, "cpuprofile", "", "Write a CPU profile to file")
	f.StringVar(&opts.memProfile, "memprofile", "", "Write a memory profile to file")

	return cmd
}

// resolveConfig layers defaults, the optional config file and explicitly
// set flags, in that order.
func resolveConfig(cmd *cobra.Command, opts *options) (cache.Config, error) {
	config := cache.DefaultConfig()

	if opts.configPath != "" {
		var (
			loaded *cache.Config
			err    error
		)
		if strings.EqualFold(filepath.Ext(opts.configPath), ".env") {
			loaded, err = cache.LoadEnvConfig(opts.configPath)
		} else {
			loaded, err = cache.LoadConfig(opts.configPath)
		}
		if err != nil {
			return cache.Config{}, err
		}
		config = *loaded
	}

	f := cmd.Flags()
	if f.Changed("block-size") {
		config.BlockSize = opts.blockSize
	}
	if f.Changed("associativity") {
		config.Associativity = opts.associativity
	}
	if f.Changed("capacity") {
		config.Size = opts.capacity
	}
	if f.Changed("miss-penalty") {
		config.MissPenalty = opts.missPenalty
	}
	if f.Changed("writeback-penalty") {
		config.DirtyWritebackPenalty = opts.wbPenalty
	}

	return config, nil
}

func run(
	cmd *cobra.Command,
	opts *options,
	tracePath string,
	stdout, stderr io.Writer,
) error {
	config, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}

	sessionOpts := []session.Option{}
	if opts.accumulateWritebacks {
		sessionOpts = append(sessionOpts,
			session.WithWritebackPolicy(stats.WritebackAccumulate))
	}
	if opts.skipMalformed {
		sessionOpts = append(sessionOpts,
			session.WithParseErrorPolicy(session.SkipParseErrors))
	}
	if opts.verify {
		sessionOpts = append(sessionOpts, session.WithReferenceCheck())
	}

	decoder, err := cache.NewDecoder(config)
	if err != nil {
		return err
	}

	if opts.verbose {
		fmt.Fprintf(stderr, "Trace: %s\n", tracePath)
		fmt.Fprintf(stderr, "Geometry: %d sets x %d ways x %dB (offset %d bits, set %d bits)\n",
			decoder.NumSets, config.Associativity, config.BlockSize,
			decoder.OffsetBits, decoder.SetBits)
	}

	// Open the trace first so a bad path leaves no recording behind.
	f, err := trace.Open(tracePath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var recorder *recording.Recorder
	if opts.recordPath != "" {
		recorder, err = recording.New(opts.recordPath, decoder)
		if err != nil {
			return err
		}
		defer func() { _ = recorder.Close() }()

		sessionOpts = append(sessionOpts, session.WithObserver(recorder))

		if opts.verbose {
			fmt.Fprintf(stderr, "Recording accesses to %s\n", recorder.Path())
		}
	}

	sim, err := session.New(config, sessionOpts...)
	if err != nil {
		return err
	}

	var src trace.Source = f
	if opts.prefetch > 0 {
		p := trace.Prefetch(context.Background(), f, opts.prefetch)
		defer func() { _ = p.Close() }()
		src = p
	}

	if err := sim.Run(src); err != nil {
		return err
	}

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			return err
		}
	}

	for _, skipped := range sim.SkippedLines() {
		fmt.Fprintf(stderr, "Warning: skipped %v\n", skipped)
	}

	report, err := sim.Report()
	if err != nil && !errors.Is(err, stats.ErrNoData) {
		return err
	}
	if errors.Is(err, stats.ErrNoData) {
		fmt.Fprintf(stderr, "Warning: no accesses or cycles, miss rate and IPC unavailable\n")
	}

	return report.Write(stdout)
}
