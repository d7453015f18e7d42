// Package trace reads memory access traces.
//
// Each line of a trace holds one access:
//
//	[#] <type> <address> <instruction_count>
//
// where type is 0 for a read and 1 for a write, address is hexadecimal
// (with or without a 0x prefix) and instruction_count is the decimal number
// of instructions retired before the access.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/cachesim/timing/cache"
)

// Record is one decoded access.
type Record struct {
	Kind         cache.AccessKind
	Address      uint64
	Instructions uint64
}

// Source yields records in trace order. Next returns io.EOF once the trace
// is exhausted.
type Source interface {
	Next() (Record, error)
}

// ParseError reports a malformed trace line.
type ParseError struct {
	// Line is the 1-based line number, or 0 if unknown.
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("trace line %d %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("trace line %q: %v", e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	// ErrFieldCount is reported for lines without exactly three fields.
	ErrFieldCount = errors.New("expected 3 fields")
	// ErrAccessType is reported for access types other than 0 and 1.
	ErrAccessType = errors.New("access type must be 0 or 1")
)

// ParseLine decodes a single trace line.
func ParseLine(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) > 0 && strings.HasPrefix(fields[0], "#") {
		// The marker may stand alone or be glued to the access type.
		fields[0] = strings.TrimPrefix(fields[0], "#")
		if fields[0] == "" {
			fields = fields[1:]
		}
	}

	if len(fields) != 3 {
		return Record{}, &ParseError{Text: line, Err: ErrFieldCount}
	}

	var rec Record

	switch fields[0] {
	case "0":
		rec.Kind = cache.Read
	case "1":
		rec.Kind = cache.Write
	default:
		return Record{}, &ParseError{Text: line, Err: ErrAccessType}
	}

	addr := strings.TrimPrefix(strings.TrimPrefix(fields[1], "0x"), "0X")
	address, err := strconv.ParseUint(addr, 16, 64)
	if err != nil {
		return Record{}, &ParseError{Text: line,
			Err: fmt.Errorf("bad address: %w", err)}
	}
	rec.Address = address

	instructions, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Record{}, &ParseError{Text: line,
			Err: fmt.Errorf("bad instruction count: %w", err)}
	}
	rec.Instructions = instructions

	return rec, nil
}

// Reader is a Source that parses a text trace. Blank lines are skipped.
// After a parse error the reader stays usable and continues with the next
// line.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Line returns the number of the last line read.
func (r *Reader) Line() int {
	return r.line
}

// Next returns the next record.
func (r *Reader) Next() (Record, error) {
	for r.scanner.Scan() {
		r.line++

		text := r.scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}

		rec, err := ParseLine(text)
		if err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				perr.Line = r.line
			}
			return Record{}, err
		}

		return rec, nil
	}

	if err := r.scanner.Err(); err != nil {
		return Record{}, fmt.Errorf("failed to read trace: %w", err)
	}

	return Record{}, io.EOF
}

// File is a Reader over a trace file on disk.
type File struct {
	*Reader
	f *os.File
}

// Open opens a trace file for reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &File{Reader: NewReader(f), f: f}, nil
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.f.Close()
}
