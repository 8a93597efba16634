// Package stream scans newline delimited data files with bounded memory.
//
// A pass groups lines into buffers limited both by record count and by
// byte size and hands every buffer to a callback. Records carry their
// absolute offset so they can be rewritten later. Scans are restartable:
// every call opens the file again and runs a new pass.
package stream

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const (
	DefaultBufferCount = 15
	DefaultBufferSize  = 32 * 1024
)

type Options struct {
	BufferCount int   // max records per buffer
	BufferSize  int   // max bytes per buffer
	Start       int64 // offset of the first record, skips headers
	RecordSize  int   // fixed record length including newline, 0 if variable
}

func (o Options) withDefaults() Options {
	if o.BufferCount <= 0 {
		o.BufferCount = DefaultBufferCount
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	return o
}

// Record is a raw line without its newline.
type Record struct {
	Offset int64
	Line   []byte
}

func (r Record) Length() int {
	return len(r.Line)
}

// End is the offset right after the record newline.
func (r Record) End() int64 {
	return r.Offset + int64(len(r.Line)) + 1
}

type Reader struct {
	filename string
	options  Options
}

func NewReader(filename string, options Options) *Reader {
	return &Reader{
		filename: filename,
		options:  options.withDefaults(),
	}
}

func (r *Reader) Filename() string {
	return r.filename
}

func (r *Reader) open(flag int) (*os.File, int64, error) {
	f, err := os.OpenFile(r.filename, flag, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", r.filename, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", r.filename, err)
	}
	return f, info.Size(), nil
}

// batcher accumulates records until one of the limits is reached.
type batcher struct {
	count   int
	size    int
	records []Record
	bytes   int
	emit    func([]Record) bool
}

func newBatcher(options Options, emit func([]Record) bool) *batcher {
	return &batcher{
		count: options.BufferCount,
		size:  options.BufferSize,
		emit:  emit,
	}
}

// add returns false when the consumer asked to stop.
func (b *batcher) add(record Record) bool {
	b.records = append(b.records, record)
	b.bytes += len(record.Line) + 1
	if len(b.records) >= b.count || b.bytes >= b.size {
		return b.flush()
	}
	return true
}

func (b *batcher) flush() bool {
	if len(b.records) == 0 {
		return true
	}
	records := b.records
	b.records = nil
	b.bytes = 0
	return b.emit(records)
}
