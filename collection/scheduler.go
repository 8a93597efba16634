package collection

import (
	"context"
	"time"

	"github.com/fulldump/textdb/query"
	"github.com/fulldump/textdb/schema"
)

// class identifies a pending queue. The order is the priority inside each
// lane.
type class int

const (
	classClear class = iota
	classClean
	classDrop
	classLock
	classAppend
	classUpdate
	classRemove
	classRead
	classReverse
	classStream
	classCount
)

var classNames = [classCount]string{
	"clear", "clean", "drop", "lock",
	"append", "update", "remove",
	"read", "reverse", "stream",
}

func (cls class) String() string {
	return classNames[cls]
}

type lane int

const (
	laneMaintenance lane = iota
	laneWrite
	laneRead
)

// request is a queued builder or maintenance operation.
type request struct {
	builder *query.Builder
	each    func(doc query.Document) bool
	op      *operation
}

type operation struct {
	ctx  context.Context
	run  func(st *state) error // may replace the schema in st
	done chan error
}

// state is what a pass needs from the actor, copied when it starts.
type state struct {
	schema *schema.Schema
	start  int64
	codec  codec
}

func (r *request) canceled() bool {
	if r.builder != nil {
		return r.builder.Canceled()
	}
	return r.op.ctx.Err() != nil
}

func (r *request) finish(err error) {
	if r.builder != nil {
		r.builder.Finish(err)
		return
	}
	r.op.done <- err
}

// fail finishes r away from the actor goroutine.
func (r *request) fail(err error) {
	go r.finish(err)
}

func (c *Collection) state() state {
	st := state{schema: c.schema, start: c.start}
	switch {
	case c.Kind == Document:
		st.codec = documentCodec{}
	case c.schema != nil:
		st.codec = tableCodec{schema: c.schema}
	}
	return st
}

func (c *Collection) idle() bool {
	return c.writing == "" && c.reading == 0 && c.maintaining == ""
}

func (c *Collection) busy() bool {
	if !c.idle() {
		return true
	}
	for _, q := range c.queues {
		if len(q) > 0 {
			return true
		}
	}
	return false
}

func (c *Collection) failQueued(err error) {
	for cls := range c.queues {
		for _, r := range c.queues[cls] {
			r.fail(err)
		}
		c.queues[cls] = nil
	}
}

// drain empties a queue. Requests canceled while waiting are finished
// here and left out of the batch.
func (c *Collection) drain(cls class) []*request {
	queued := c.queues[cls]
	c.queues[cls] = nil

	batch := make([]*request, 0, len(queued))
	for _, r := range queued {
		if !r.canceled() {
			batch = append(batch, r)
			continue
		}
		if r.op != nil {
			r.fail(r.op.ctx.Err())
		} else {
			r.fail(context.Canceled)
		}
	}
	return batch
}

// next is the scheduling tick. Maintenance waits until no write and no
// read is running and holds back new starts meanwhile. Then a single write
// and as many reads as the ceiling allows.
func (c *Collection) next() {

	if c.dropped {
		c.failQueued(ErrDropped)
		return
	}
	if !c.ready || c.maintaining != "" {
		return
	}

	for cls := classClear; cls <= classLock; cls++ {
		if len(c.queues[cls]) == 0 {
			continue
		}
		if c.writing != "" || c.reading > 0 {
			return
		}
		batch := c.drain(cls)
		if len(batch) == 0 {
			continue
		}
		c.startMaintenance(cls, batch)
		return
	}

	for cls := classAppend; c.writing == "" && cls <= classRemove; cls++ {
		if len(c.queues[cls]) == 0 {
			continue
		}
		if batch := c.drain(cls); len(batch) > 0 {
			c.startWrite(cls, batch)
		}
	}

	reads := []class{classRead, classReverse, classStream}
	for tried := 0; tried < len(reads) && c.reading < c.options.MaxReaders; tried++ {
		cls := reads[c.readTurn%len(reads)]
		c.readTurn++
		if len(c.queues[cls]) == 0 {
			continue
		}
		if batch := c.drain(cls); len(batch) > 0 {
			c.startRead(cls, batch)
			tried = -1
		}
	}
}

// deferNext ticks once the fan-in window is over, so reads arriving
// together are drained into the same pass.
func (c *Collection) deferNext() {
	if c.tickPending {
		return
	}
	c.tickPending = true
	time.AfterFunc(c.options.FanInWindow, func() {
		c.send(func() {
			c.tickPending = false
			c.next()
		})
	})
}

// launch runs pass on its own goroutine. pass returns deliver, run after
// the actor has been told the pass is over, and apply, run on the actor.
func (c *Collection) launch(l lane, pass func() (deliver func(), apply func())) {
	c.passes.Add(1)
	started := time.Now()
	go func() {
		deliver, apply := pass()
		c.send(func() {
			if apply != nil {
				apply()
			}
			c.finished(l, time.Since(started))
		})
		if deliver != nil {
			deliver()
		}
	}()
}

func (c *Collection) finished(l lane, elapsed time.Duration) {
	switch l {
	case laneMaintenance:
		c.maintaining = ""
	case laneWrite:
		c.writing = ""
	case laneRead:
		c.reading--
	}
	c.durations = append(c.durations, elapsed)
	if len(c.durations) > DurationsKept {
		c.durations = c.durations[len(c.durations)-DurationsKept:]
	}
	c.next()
}

func (c *Collection) startWrite(cls class, batch []*request) {
	c.writing = cls.String()
	st := c.state()
	c.launch(laneWrite, func() (func(), func()) {
		if st.codec == nil {
			return failAll(batch, ErrNoSchema), nil
		}
		if cls == classAppend {
			return c.appendPass(st, batch), nil
		}
		return c.writePass(cls, st, batch), nil
	})
}

func (c *Collection) startRead(cls class, batch []*request) {
	c.reading++
	st := c.state()
	c.launch(laneRead, func() (func(), func()) {
		return c.readPass(cls, st, batch), nil
	})
}

func (c *Collection) startMaintenance(cls class, batch []*request) {
	c.maintaining = cls.String()
	st := c.state()
	c.launch(laneMaintenance, func() (func(), func()) {

		var err error
		var apply func()
		errs := make([]error, len(batch))

		switch cls {
		case classClear:
			err = c.clear(st)
		case classClean:
			err = c.clean(st)
		case classDrop:
			err = c.drop()
			if err == nil {
				apply = c.markDropped
			}
		case classLock:
			before := st
			for i, r := range batch {
				errs[i] = r.op.run(&st)
				if errs[i] != nil {
					c.logger.Error("lock", "err", errs[i])
				}
			}
			if st.schema != before.schema {
				apply = func() {
					c.setSchema(st.schema, st.start)
				}
			}
		}

		if err != nil {
			c.logger.Error(cls.String(), "err", err)
			for i := range errs {
				errs[i] = err
			}
		}

		return func() {
			for i, r := range batch {
				r.finish(errs[i])
			}
		}, apply
	})
}

func failAll(batch []*request, err error) func() {
	return func() {
		for _, r := range batch {
			r.finish(err)
		}
	}
}
