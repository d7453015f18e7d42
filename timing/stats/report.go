package stats

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/sarchlab/cachesim/timing/cache"
)

// Report is a read-only snapshot of a finished run.
type Report struct {
	Config cache.Config
	Policy WritebackPolicy

	Accesses        uint64
	Reads           uint64
	Writes          uint64
	Misses          uint64
	Hits            uint64
	Instructions    uint64
	DirtyWritebacks uint64
	Cycles          uint64

	// Available is false when the run had no accesses or no cycles. In that
	// case MissRate and IPC are meaningless and left at zero.
	Available bool
	MissRate  float64
	IPC       float64
}

var header = color.New(color.Bold)

// Write renders the report in the classic four-section layout.
func (r Report) Write(w io.Writer) error {
	ew := &errWriter{w: w}

	ew.header("CACHE SETTINGS")
	ew.printf("       Cache Size (Bytes): %d\n", r.Config.Size)
	ew.printf("           Associativity : %d\n", r.Config.Associativity)
	ew.printf("       Block Size (Bytes): %d\n", r.Config.BlockSize)
	ew.printf("    Miss Penalty (Cycles): %d\n", r.Config.MissPenalty)
	ew.printf("Dirty WB Penalty (Cycles): %d\n", r.Config.DirtyWritebackPenalty)
	ew.printf("\n")

	ew.header("CACHE ACCESS STATS")
	ew.printf("TOTAL ACCESSES: %d\n", r.Accesses)
	ew.printf("         READS: %d\n", r.Reads)
	ew.printf("        WRITES: %d\n", r.Writes)
	ew.printf("\n")

	ew.header("CACHE MISS-RATE STATS")
	if r.Accesses == 0 {
		ew.printf("     MISS-RATE: n/a (no data)\n")
	} else {
		ew.printf("     MISS-RATE: %g\n", float64(r.Misses)/float64(r.Accesses)*100.0)
	}
	ew.printf("        MISSES: %d\n", r.Misses)
	ew.printf("          HITS: %d\n", r.Hits)
	ew.printf("\n")

	ew.header("CACHE IPC STATS")
	if r.Available {
		ew.printf("           IPC: %g\n", r.IPC)
	} else {
		ew.printf("           IPC: n/a (no data)\n")
	}
	ew.printf("  INSTRUCTIONS: %d\n", r.Instructions)
	ew.printf("        CYCLES: %d\n", r.Cycles)
	ew.printf("      DIRTY WB: %d\n", r.DirtyWritebacks)

	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) header(title string) {
	if ew.err != nil {
		return
	}
	_, ew.err = header.Fprintln(ew.w, title)
}
