// Package collection runs one collection: its data file, the journals
// next to it and the scheduler that orders every operation on them.
//
// A collection is an actor. One goroutine owns the pending queues and the
// scheduler flags and runs the closures sent to its inbox. Passes over the
// file run on their own goroutines and report back through the inbox.
package collection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulldump/textdb/query"
	"github.com/fulldump/textdb/schema"
)

type Collection struct {
	Name string
	Kind Kind

	filename   string
	logname    string
	backupname string
	options    Options
	logger     *slog.Logger

	inbox     chan func()
	closed    chan struct{}
	closeOnce sync.Once
	passes    atomic.Int64
	gone      atomic.Bool

	// Owned by the actor goroutine.
	queues      [classCount][]*request
	writing     string
	reading     int
	maintaining string
	ready       bool
	dropped     bool
	closing     bool
	schema      *schema.Schema
	start       int64
	durations   []time.Duration
	readTurn    int
	tickPending bool
}

// Create makes the data file of a new collection and opens it. Tables get
// their schema header written.
func Create(dir, name string, kind Kind, definition string, options Options) (*Collection, error) {

	filename := Filename(dir, name, kind)

	header := []byte{}
	if kind == Table {
		s, err := schema.Parse(definition)
		if err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		header = s.Header()
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("create collection file: %w", err)
	}
	_, err = f.Write(header)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write collection header: %w", err)
	}

	return Open(filename, options)
}

// Open starts the collection stored in filename. The extension tells the
// model. Tables load their header in the background; operations queue
// until it is ready.
func Open(filename string, options Options) (*Collection, error) {

	name, kind, ok := ParseFilename(filename)
	if !ok {
		return nil, fmt.Errorf("unknown collection file '%s'", filename)
	}

	options = options.withDefaults()
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	ext := extensions[kind]

	c := &Collection{
		Name:       name,
		Kind:       kind,
		filename:   filename,
		logname:    base + ext[1],
		backupname: base + ext[2],
		options:    options,
		logger:     options.Logger.With("collection", name),
		inbox:      make(chan func()),
		closed:     make(chan struct{}),
		ready:      kind == Document,
	}

	go c.loop()

	if kind == Table {
		go c.loadHeader()
	}

	return c, nil
}

func (c *Collection) loop() {
	defer close(c.closed)
	for {
		fn := <-c.inbox
		fn()
		if c.closing && c.idle() {
			return
		}
	}
}

// send runs fn on the actor. It returns false once the collection is
// closed.
func (c *Collection) send(fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-c.closed:
		return false
	}
}

// goneErr is the error for requests arriving after the actor stopped.
func (c *Collection) goneErr() error {
	if c.gone.Load() {
		return ErrDropped
	}
	return ErrClosed
}

func (c *Collection) loadHeader() {
	s, start, err := readHeader(c.filename)
	if err != nil {
		c.logger.Error("load schema header", "err", err)
	}
	c.send(func() {
		c.setSchema(s, start)
		c.ready = true
		c.logger.Debug("collection ready", "schema", s)
		c.next()
	})
}

func (c *Collection) setSchema(s *schema.Schema, start int64) {
	if s != nil && c.options.NoAllocations {
		s.Allocations = false
	}
	c.schema = s
	c.start = start
}

// readHeader reads the schema line of a table file. A missing or empty
// file has no schema.
func readHeader(filename string) (*schema.Schema, int64, error) {

	f, err := os.Open(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, 0, err
	}
	definition := strings.TrimSpace(string(line))
	if definition == "" {
		return nil, 0, nil
	}

	s, err := schema.Parse(definition)
	if err != nil {
		return nil, 0, fmt.Errorf("header of %s: %w", filename, err)
	}
	return s, int64(len(line)), nil
}

// Close stops the collection. Queued operations fail with ErrClosed, the
// ones already running finish first.
func (c *Collection) Close() error {
	c.closeOnce.Do(func() {
		c.send(func() {
			c.closing = true
			c.failQueued(ErrClosed)
		})
	})
	<-c.closed
	return nil
}

func (c *Collection) Filename() string {
	return c.filename
}

// Schema returns the current table schema, nil for documents.
func (c *Collection) Schema() *schema.Schema {
	ch := make(chan *schema.Schema, 1)
	if !c.send(func() { ch <- c.schema }) {
		return nil
	}
	return <-ch
}

func (c *Collection) builder(cls class) *query.Builder {
	return query.New().Attach(func(b *query.Builder) {
		c.enqueue(cls, &request{builder: b})
	})
}

// Insert appends doc. Run it with Exec, Do or Callback.
func (c *Collection) Insert(doc query.Document) *query.Builder {
	return c.builder(classAppend).Payload(doc)
}

// Find scans from the beginning of the file.
func (c *Collection) Find() *query.Builder {
	return c.builder(classRead)
}

// Find2 scans from the end of the file, newest records first.
func (c *Collection) Find2() *query.Builder {
	return c.builder(classReverse)
}

// Stream hands every accepted document to each while the file is being
// scanned, nothing is accumulated. each returns false to stop.
func (c *Collection) Stream(each func(doc query.Document) bool) *query.Builder {
	return query.New().Take(0).Attach(func(b *query.Builder) {
		c.enqueue(classStream, &request{builder: b, each: each})
	})
}

// Update applies the modify rule to every accepted document.
func (c *Collection) Update() *query.Builder {
	return c.builder(classUpdate)
}

// Remove tombstones every accepted document.
func (c *Collection) Remove() *query.Builder {
	return c.builder(classRemove)
}

// Clear truncates the data file. Tables keep their schema.
func (c *Collection) Clear(ctx context.Context) error {
	return c.do(ctx, classClear, nil)
}

// Clean rewrites the data file without tombstones.
func (c *Collection) Clean(ctx context.Context) error {
	return c.do(ctx, classClean, nil)
}

// Drop deletes the data file and its journals. Every later operation
// fails with ErrDropped.
func (c *Collection) Drop(ctx context.Context) error {
	return c.do(ctx, classDrop, nil)
}

// Lock runs fn while nothing else touches the collection.
func (c *Collection) Lock(ctx context.Context, fn func() error) error {
	return c.do(ctx, classLock, func(*state) error {
		return fn()
	})
}

// Alter sets the schema of a table. Existing records are re-encoded when
// it differs from the stored one.
func (c *Collection) Alter(ctx context.Context, definition string) error {
	if c.Kind != Table {
		return ErrNotTable
	}
	s, err := schema.Parse(definition)
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return c.do(ctx, classLock, func(st *state) error {
		return c.extend(st, s)
	})
}

// Backup writes a compressed archive of the collection files.
func (c *Collection) Backup(ctx context.Context, filename string) error {
	return c.do(ctx, classLock, func(*state) error {
		return c.archive(filename)
	})
}

// Restore replaces the collection files with the content of an archive
// made by Backup. It fails with ErrBusy unless the collection is idle.
func (c *Collection) Restore(ctx context.Context, filename string) error {

	done := make(chan error, 1)
	ok := c.send(func() {
		switch {
		case c.dropped:
			done <- ErrDropped
		case c.closing:
			done <- ErrClosed
		case !c.ready || c.busy():
			done <- ErrBusy
		default:
			c.maintaining = "restore"
			c.launch(laneMaintenance, func() (func(), func()) {
				s, start, err := c.extract(filename)
				apply := func() {
					if err == nil {
						c.setSchema(s, start)
						c.logger.Info("collection restored", "from", filename)
					}
				}
				return func() { done <- err }, apply
			})
		}
	})
	if !ok {
		return c.goneErr()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Collection) do(ctx context.Context, cls class, run func(*state) error) error {
	op := &operation{
		ctx:  ctx,
		run:  run,
		done: make(chan error, 1),
	}
	c.enqueue(cls, &request{op: op})
	select {
	case err := <-op.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Collection) enqueue(cls class, r *request) {
	ok := c.send(func() {
		switch {
		case c.dropped:
			r.fail(ErrDropped)
		case c.closing:
			r.fail(ErrClosed)
		default:
			c.queues[cls] = append(c.queues[cls], r)
			if cls >= classRead {
				c.deferNext()
			} else {
				c.next()
			}
		}
	})
	if !ok {
		r.finish(c.goneErr())
	}
}
