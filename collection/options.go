package collection

import (
	"log/slog"
	"time"

	"github.com/fulldump/textdb/stream"
)

const (
	DefaultMaxReaders  = 3
	DefaultAppendChunk = 40
	DurationsKept      = 20
	DefaultFanInWindow = time.Millisecond
)

type Options struct {
	BufferCount int // max records per scan buffer
	BufferSize  int // max bytes per scan buffer
	MaxReaders  int // read passes running at the same time
	AppendChunk int // records per append write

	// FanInWindow is how long a read waits for others to share its pass.
	FanInWindow time.Duration

	// NoAllocations disables the slack reserved on insert by unsized
	// tables, so any growing update relocates the record.
	NoAllocations bool

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.BufferCount <= 0 {
		o.BufferCount = stream.DefaultBufferCount
	}
	if o.BufferSize <= 0 {
		o.BufferSize = stream.DefaultBufferSize
	}
	if o.MaxReaders <= 0 {
		o.MaxReaders = DefaultMaxReaders
	}
	if o.AppendChunk <= 0 {
		o.AppendChunk = DefaultAppendChunk
	}
	if o.FanInWindow <= 0 {
		o.FanInWindow = DefaultFanInWindow
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
