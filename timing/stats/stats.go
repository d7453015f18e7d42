// Package stats accumulates per-access cache outcomes and turns them into a
// miss-rate and IPC report.
package stats

import (
	"errors"

	"github.com/sarchlab/cachesim/timing/cache"
)

// WritebackPolicy selects how dirty write-backs are counted.
type WritebackPolicy int

const (
	// WritebackLast keeps only the write-back flag of the most recent
	// access, so at most one write-back is charged per run.
	WritebackLast WritebackPolicy = iota
	// WritebackAccumulate counts every dirty write-back.
	WritebackAccumulate
)

func (p WritebackPolicy) String() string {
	if p == WritebackAccumulate {
		return "accumulate"
	}
	return "last"
}

// ErrNoData is returned when a report is requested for a run with no
// accesses or no cycles.
var ErrNoData = errors.New("no data")

// Statistics holds the running counters of a simulation session.
type Statistics struct {
	Accesses        uint64
	Writes          uint64
	Misses          uint64
	DirtyWritebacks uint64
	Instructions    uint64

	policy WritebackPolicy
}

// NewStatistics creates empty counters using the given write-back policy.
func NewStatistics(policy WritebackPolicy) *Statistics {
	return &Statistics{policy: policy}
}

// Policy returns the write-back policy in use.
func (s *Statistics) Policy() WritebackPolicy {
	return s.policy
}

// Record folds one access outcome into the counters.
func (s *Statistics) Record(
	kind cache.AccessKind,
	instructions uint64,
	result cache.AccessResult,
) {
	s.Accesses++
	if kind == cache.Write {
		s.Writes++
	}
	if !result.Hit {
		s.Misses++
	}
	s.Instructions += instructions

	var wb uint64
	if result.DirtyWriteback {
		wb = 1
	}

	switch s.policy {
	case WritebackAccumulate:
		s.DirtyWritebacks += wb
	default:
		s.DirtyWritebacks = wb
	}
}

// Reads returns the number of read accesses.
func (s *Statistics) Reads() uint64 {
	return s.Accesses - s.Writes
}

// Hits returns the number of hits.
func (s *Statistics) Hits() uint64 {
	return s.Accesses - s.Misses
}

// Cycles returns the estimated cycle count under the given penalties.
func (s *Statistics) Cycles(config cache.Config) uint64 {
	return config.MissPenalty*s.Misses +
		config.DirtyWritebackPenalty*s.DirtyWritebacks +
		s.Instructions
}

// Report computes the end-of-run report. When there were no accesses or no
// cycles, the counts are still filled in, the rate fields are left at zero
// with Available unset, and ErrNoData is returned.
func (s *Statistics) Report(config cache.Config) (Report, error) {
	r := Report{
		Config:          config,
		Policy:          s.policy,
		Accesses:        s.Accesses,
		Reads:           s.Reads(),
		Writes:          s.Writes,
		Misses:          s.Misses,
		Hits:            s.Hits(),
		Instructions:    s.Instructions,
		DirtyWritebacks: s.DirtyWritebacks,
		Cycles:          s.Cycles(config),
	}

	if s.Accesses == 0 || r.Cycles == 0 {
		return r, ErrNoData
	}

	r.Available = true
	r.MissRate = float64(s.Misses) / float64(s.Accesses) * 100.0
	r.IPC = float64(s.Instructions) / float64(r.Cycles)

	return r, nil
}
