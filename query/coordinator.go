package query

// Coordinator evaluates many builders over a single scan. It is not safe
// for concurrent use: one pass goroutine drives it.
type Coordinator struct {
	entries []*entry
}

type entry struct {
	builder *Builder
	topk    *TopK
	each    func(doc Document) bool
	closed  bool
	result  error
}

func NewCoordinator(builders ...*Builder) *Coordinator {
	c := &Coordinator{}
	for _, b := range builders {
		c.Add(b)
	}
	return c
}

func (c *Coordinator) Add(b *Builder) {
	e := &entry{builder: b}
	if b.sort != nil && b.scalar == nil {
		limit := 0
		if b.take > 0 {
			limit = b.take + b.skip
		}
		e.topk = NewTopK(limit, b.sort.comparator())
	}
	c.entries = append(c.entries, e)
}

// AddStream registers a builder whose accepted documents are handed to
// each, prepared and in scan order, instead of being accumulated. Sorting
// does not apply. each returns false to stop receiving documents.
func (c *Coordinator) AddStream(b *Builder, each func(doc Document) bool) {
	c.entries = append(c.entries, &entry{builder: b, each: each})
}

func (c *Coordinator) Len() int {
	return len(c.entries)
}

func (c *Coordinator) Builders() []*Builder {
	builders := make([]*Builder, len(c.entries))
	for i, e := range c.entries {
		builders[i] = e.builder
	}
	return builders
}

// Active counts the builders still receiving documents.
func (c *Coordinator) Active() int {
	n := 0
	for _, e := range c.entries {
		if !e.closed && !e.builder.Canceled() {
			n++
		}
	}
	return n
}

// accept runs filter, skip and take bookkeeping for one document.
func (e *entry) accept(doc Document) bool {
	b := e.builder
	if e.closed {
		return false
	}
	if b.Canceled() {
		e.closed = true
		return false
	}
	b.Scanned++
	if !b.Match(doc) {
		return false
	}
	b.Count++
	if e.topk == nil {
		if b.Count <= b.skip {
			return false
		}
		if b.take > 0 && b.Counter >= b.take {
			e.closed = true
			return false
		}
	}
	b.Counter++
	return true
}

func (e *entry) collect(doc Document) {
	b := e.builder
	switch {
	case e.each != nil:
		if !e.each(b.Prepare(doc)) {
			e.closed = true
		}
	case b.scalar != nil:
		b.Aggregate = b.scalar.Fold(b.Aggregate, doc, b.scalarArg)
	case e.topk != nil:
		e.topk.Push(doc)
	default:
		b.Items = append(b.Items, doc)
	}
	if e.topk == nil && b.take > 0 && b.Counter >= b.take {
		e.closed = true
	}
}

// Compare feeds a batch of documents to every builder. Nil documents are
// skipped. It reports whether any builder still wants documents.
func (c *Coordinator) Compare(docs []Document) bool {
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		for _, e := range c.entries {
			if e.accept(doc) {
				e.collect(doc)
			}
		}
	}
	return c.Active() > 0
}

// Compare2 is Compare for write passes. Every accepting builder gets
// mutate, which reports whether doc changed and whether later builders
// must not see it. flush runs once per changed document. Sorting is
// ignored: writes happen in scan order.
func (c *Coordinator) Compare2(docs []Document, mutate func(i int, doc Document, b *Builder) (changed, stop bool), flush func(i int, doc Document)) bool {
	for _, e := range c.entries {
		e.topk = nil
	}
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		changed := false
		for _, e := range c.entries {
			if !e.accept(doc) {
				continue
			}
			ch, stop := mutate(i, doc, e.builder)
			changed = changed || ch
			e.collect(doc)
			if stop {
				break
			}
		}
		if changed {
			flush(i, doc)
		}
	}
	return c.Active() > 0
}

// Done settles and delivers the results.
func (c *Coordinator) Done(err error, before func(b *Builder) error) {
	c.Settle(err, before)
	c.Deliver()
}

// Settle computes the final results. Accumulated documents go through
// Prepare only here. before runs per builder and is where journal hooks
// are fired; its error replaces err when err is nil.
func (c *Coordinator) Settle(err error, before func(b *Builder) error) {
	for _, e := range c.entries {
		b := e.builder
		if e.topk != nil {
			items := e.topk.Items()
			if b.skip < len(items) {
				items = items[b.skip:]
			} else {
				items = nil
			}
			b.Items = items
			b.Counter = len(items)
		}
		if b.first && len(b.Items) > 1 {
			b.Items = b.Items[:1]
		}
		for i, doc := range b.Items {
			b.Items[i] = b.Prepare(doc)
		}
		if f, ok := b.scalar.(Finisher); ok {
			b.Aggregate = f.Finish(b.Aggregate)
		}

		e.result = err
		if e.result == nil && before != nil {
			e.result = before(b)
		}
	}
}

// Deliver hands every builder its result.
func (c *Coordinator) Deliver() {
	for _, e := range c.entries {
		e.builder.Finish(e.result)
	}
}
