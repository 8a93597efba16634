package collection

import (
	"fmt"
	"os"

	"github.com/fulldump/textdb/journal"
	"github.com/fulldump/textdb/query"
	"github.com/fulldump/textdb/stream"
)

func (c *Collection) reader(st state) *stream.Reader {
	options := stream.Options{
		BufferCount: c.options.BufferCount,
		BufferSize:  c.options.BufferSize,
		Start:       st.start,
	}
	if st.schema != nil {
		options.RecordSize = st.schema.RecordSize()
	}
	return stream.NewReader(c.filename, options)
}

func decodeAll(cd codec, records []stream.Record) []query.Document {
	docs := make([]query.Document, len(records))
	for i, r := range records {
		if doc, ok := cd.decode(r.Line); ok {
			docs[i] = doc
		}
	}
	return docs
}

// hooks fires the journal side effects of a builder, once per builder.
func (c *Collection) hooks(b *query.Builder) error {
	if meta := b.BackupMeta(); meta != nil && len(b.Affected()) > 0 {
		if err := journal.Append(c.backupname, meta, b.Affected()); err != nil {
			c.logger.Error("backup hook", "err", err)
			return err
		}
	}
	if meta := b.LogMeta(); meta != nil {
		if err := journal.Append(c.logname, meta, b.Spec()); err != nil {
			c.logger.Error("log hook", "err", err)
			return err
		}
	}
	return nil
}

func (c *Collection) readPass(cls class, st state, batch []*request) func() {

	coordinator := query.NewCoordinator()
	for _, r := range batch {
		if r.each != nil {
			coordinator.AddStream(r.builder, r.each)
			continue
		}
		coordinator.Add(r.builder)
	}

	var err error
	if st.codec != nil {
		reader := c.reader(st)
		scan := reader.Forward
		if cls == classReverse {
			scan = reader.Reverse
		}
		err = scan(func(records []stream.Record) bool {
			return coordinator.Compare(decodeAll(st.codec, records))
		})
	}
	if err != nil {
		c.logger.Error(cls.String(), "err", err)
	}

	coordinator.Settle(err, c.hooks)
	return coordinator.Deliver
}

// appendPass writes the payloads in chunks, one write per chunk.
func (c *Collection) appendPass(st state, batch []*request) func() {

	errs := make([]error, len(batch))

	f, err := os.OpenFile(c.filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		err = fmt.Errorf("open for append: %w", err)
		c.logger.Error("append", "err", err)
		return failAll(batch, err)
	}
	defer f.Close()

	for from := 0; from < len(batch); from += c.options.AppendChunk {
		to := min(from+c.options.AppendChunk, len(batch))

		var buf []byte
		for i := from; i < to; i++ {
			b := batch[i].builder
			payload := b.GetPayload()
			if payload == nil {
				errs[i] = ErrPayload
				continue
			}
			line, err := st.codec.encode(payload, 0)
			if err != nil {
				errs[i] = fmt.Errorf("encode: %w", err)
				continue
			}
			buf = append(buf, line...)
			buf = append(buf, '\n')

			if doc, ok := st.codec.decode(line); ok {
				payload = doc
			}
			b.Items = []query.Document{payload}
			b.Scanned, b.Count, b.Counter = 1, 1, 1
		}

		if len(buf) == 0 {
			continue
		}
		if _, err := f.Write(buf); err != nil {
			err = fmt.Errorf("append: %w", err)
			c.logger.Error("append", "err", err)
			for i := from; i < to; i++ {
				if errs[i] == nil {
					errs[i] = err
				}
			}
		}
	}

	for i, r := range batch {
		if errs[i] == nil {
			errs[i] = c.hooks(r.builder)
		}
	}

	return func() {
		for i, r := range batch {
			r.finish(errs[i])
		}
	}
}

// writePass updates or removes in a single update scan. A record is
// rewritten in place when its new encoding has the same length, otherwise
// it is tombstoned and the new version is appended.
func (c *Collection) writePass(cls class, st state, batch []*request) func() {

	builders := make([]*query.Builder, len(batch))
	for i, r := range batch {
		builders[i] = r.builder
	}
	coordinator := query.NewCoordinator(builders...)

	mutate := func(i int, doc query.Document, b *query.Builder) (bool, bool) {
		b.Affect(doc)
		if cls == classRemove {
			return true, true
		}
		b.Apply(doc)
		return true, false
	}

	var failure error
	err := c.reader(st).Update(func(records []stream.Record, w *stream.Writer) bool {
		more := coordinator.Compare2(decodeAll(st.codec, records), mutate, func(i int, doc query.Document) {
			record := records[i]
			if cls == classRemove {
				w.Overwrite(tombstone, record.Offset)
				return
			}
			line, err := st.codec.encode(doc, record.Length())
			if err != nil {
				failure = fmt.Errorf("encode at %d: %w", record.Offset, err)
				return
			}
			if len(line) == record.Length() {
				w.Overwrite(line, record.Offset)
				return
			}
			w.Overwrite(tombstone, record.Offset)
			w.Append(append(line, '\n'))
		})
		return more && failure == nil
	})
	if err == nil {
		err = failure
	}
	if err != nil {
		c.logger.Error(cls.String(), "err", err)
	}

	coordinator.Settle(err, c.hooks)
	return coordinator.Deliver
}
