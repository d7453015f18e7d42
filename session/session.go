// Package session drives a cache model over a trace and collects the run
// statistics.
package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/cachesim/timing/cache"
	"github.com/sarchlab/cachesim/timing/reference"
	"github.com/sarchlab/cachesim/timing/stats"
	"github.com/sarchlab/cachesim/trace"
)

// ParseErrorPolicy decides what a run does with a malformed trace line.
type ParseErrorPolicy int

const (
	// AbortOnParseError stops the run at the first malformed line.
	AbortOnParseError ParseErrorPolicy = iota
	// SkipParseErrors drops malformed lines and keeps going.
	SkipParseErrors
)

// Observer is notified after every processed access. Index counts accesses
// from 0 in trace order.
type Observer interface {
	Observe(index uint64, rec trace.Record, result cache.AccessResult)
}

// MismatchError reports the first access where the cache and the reference
// model disagree.
type MismatchError struct {
	Index     uint64
	Record    trace.Record
	Got       cache.AccessResult
	Reference cache.AccessResult
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf(
		"access %d (%s 0x%x): cache reported %+v, reference reported %+v",
		e.Index, e.Record.Kind, e.Record.Address, e.Got, e.Reference)
}

// Session owns one cache and its statistics for the duration of a run.
type Session struct {
	cache     *cache.Cache
	stats     *stats.Statistics
	reference *reference.Model
	observers []Observer

	writebackPolicy  stats.WritebackPolicy
	parseErrorPolicy ParseErrorPolicy
	verify           bool

	index   uint64
	skipped []*trace.ParseError
}

// Option configures a Session.
type Option func(*Session)

// WithWritebackPolicy selects how dirty write-backs are counted.
func WithWritebackPolicy(policy stats.WritebackPolicy) Option {
	return func(s *Session) {
		s.writebackPolicy = policy
	}
}

// WithParseErrorPolicy selects how malformed trace lines are handled.
func WithParseErrorPolicy(policy ParseErrorPolicy) Option {
	return func(s *Session) {
		s.parseErrorPolicy = policy
	}
}

// WithObserver registers an observer of per-access outcomes.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		s.observers = append(s.observers, o)
	}
}

// WithReferenceCheck replays every access on the reference LRU model and
// fails the run on the first disagreement.
func WithReferenceCheck() Option {
	return func(s *Session) {
		s.verify = true
	}
}

// New creates a session. An invalid configuration returns a
// *cache.ConfigurationError.
func New(config cache.Config, opts ...Option) (*Session, error) {
	s := &Session{}
	for _, opt := range opts {
		opt(s)
	}

	c, err := cache.New(config)
	if err != nil {
		return nil, err
	}
	s.cache = c
	s.stats = stats.NewStatistics(s.writebackPolicy)

	if s.verify {
		s.reference, err = reference.New(config)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Config returns the cache configuration.
func (s *Session) Config() cache.Config {
	return s.cache.Config()
}

// Cache returns the cache model.
func (s *Session) Cache() *cache.Cache {
	return s.cache
}

// Stats returns a snapshot of the running statistics.
func (s *Session) Stats() stats.Statistics {
	return *s.stats
}

// Report computes the end-of-run report. See stats.Statistics.Report.
func (s *Session) Report() (stats.Report, error) {
	return s.stats.Report(s.cache.Config())
}

// SkippedLines returns the malformed lines dropped under SkipParseErrors.
func (s *Session) SkippedLines() []*trace.ParseError {
	return s.skipped
}

// Access processes one record. With a reference check enabled, a
// disagreement is returned as a *MismatchError alongside the cache's result.
func (s *Session) Access(rec trace.Record) (cache.AccessResult, error) {
	return s.access(rec)
}

func (s *Session) access(rec trace.Record) (cache.AccessResult, error) {
	index := s.index
	s.index++

	result := s.cache.Probe(rec.Kind, rec.Address)
	s.stats.Record(rec.Kind, rec.Instructions, result)

	for _, o := range s.observers {
		o.Observe(index, rec, result)
	}

	if s.reference != nil {
		expected := s.reference.Access(rec.Kind, rec.Address)
		if expected != result {
			return result, &MismatchError{
				Index:     index,
				Record:    rec,
				Got:       result,
				Reference: expected,
			}
		}
	}

	return result, nil
}

// Run processes src until it is exhausted.
func (s *Session) Run(src trace.Source) error {
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			var perr *trace.ParseError
			if errors.As(err, &perr) && s.parseErrorPolicy == SkipParseErrors {
				s.skipped = append(s.skipped, perr)
				continue
			}

			return err
		}

		if _, err := s.access(rec); err != nil {
			return err
		}
	}
}
