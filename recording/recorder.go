// Package recording stores per-access cache outcomes in a SQLite database.
package recording

import (
	"fmt"
	"os"

	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/datarecording"

	"github.com/sarchlab/cachesim/timing/cache"
	"github.com/sarchlab/cachesim/trace"
)

// TableName is the table that holds one row per access.
const TableName = "access"

// Entry is one recorded access. SQLite integers are signed, so addresses and
// tags keep their bit pattern in an int64.
type Entry struct {
	Seq            uint64 `akita_data:"unique"`
	Kind           string
	Address        int64
	Instructions   uint64
	Hit            bool
	DirtyWriteback bool
	SetIndex       int `akita_data:"index"`
	Tag            int64
}

// Recorder buffers access outcomes and writes them through an akita data
// recorder. It implements session.Observer.
type Recorder struct {
	recorder datarecording.DataRecorder
	path     string
	decoder  *cache.Decoder
	closed   bool
}

// New creates <path>.sqlite3 and the access table. An empty path picks a
// unique name. The decoder is used to store the set index and tag of each
// access.
func New(path string, decoder *cache.Decoder) (r *Recorder, err error) {
	if path == "" {
		path = "cachesim_" + xid.New().String()
	}

	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("file %s already exists", filename)
	}

	// The data recorder panics when the database cannot be set up.
	defer func() {
		if p := recover(); p != nil {
			r = nil
			err = fmt.Errorf("failed to create recording database %s: %v",
				filename, p)
		}
	}()

	recorder := datarecording.NewDataRecorder(path)
	recorder.CreateTable(TableName, Entry{})

	return &Recorder{
		recorder: recorder,
		path:     filename,
		decoder:  decoder,
	}, nil
}

// Path returns the database file name.
func (r *Recorder) Path() string {
	return r.path
}

// Observe buffers one access outcome.
func (r *Recorder) Observe(
	index uint64,
	rec trace.Record,
	result cache.AccessResult,
) {
	r.recorder.InsertData(TableName, Entry{
		Seq:            index,
		Kind:           rec.Kind.String(),
		Address:        int64(rec.Address),
		Instructions:   rec.Instructions,
		Hit:            result.Hit,
		DirtyWriteback: result.DirtyWriteback,
		SetIndex:       r.decoder.SetIndex(rec.Address),
		Tag:            int64(r.decoder.Tag(rec.Address)),
	})
}

// Flush writes all buffered rows.
func (r *Recorder) Flush() {
	r.recorder.Flush()
}

// Close flushes and closes the database. Closing twice is a no-op.
func (r *Recorder) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	return r.recorder.Close()
}
