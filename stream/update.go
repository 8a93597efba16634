package stream

import (
	"fmt"
	"math"
	"os"

	"github.com/google/btree"
)

// Writer collects the writes issued during an update pass.
//
// Overwrites are kept ordered by offset and only reach the file once the
// pass has consumed the bytes they cover. Appends are buffered and written
// after the last record has been read, so the pass never reads its own
// output.
type Writer struct {
	file    *os.File
	size    int64
	pending *btree.BTreeG[write]
	appends []byte
	err     error

	Overwrites int
	Appends    int
}

type write struct {
	offset int64
	data   []byte
}

func writeLess(a, b write) bool {
	return a.offset < b.offset
}

func newWriter(f *os.File, size int64) *Writer {
	return &Writer{
		file:    f,
		size:    size,
		pending: btree.NewG(8, writeLess),
	}
}

// Overwrite replaces len(data) bytes at offset. A later overwrite at the
// same offset wins.
func (w *Writer) Overwrite(data []byte, offset int64) {
	w.pending.ReplaceOrInsert(write{offset: offset, data: data})
	w.Overwrites++
}

// Append adds data at the end of the file once the pass is over.
func (w *Writer) Append(data []byte) {
	w.appends = append(w.appends, data...)
	w.Appends++
}

// Changed reports whether the pass issued any write.
func (w *Writer) Changed() bool {
	return w.Overwrites > 0 || w.Appends > 0
}

// flushBelow persists every pending overwrite that ends before watermark.
func (w *Writer) flushBelow(watermark int64) error {
	if w.err != nil {
		return w.err
	}

	var ready []write
	w.pending.Ascend(func(item write) bool {
		if item.offset+int64(len(item.data)) > watermark {
			return false
		}
		ready = append(ready, item)
		return true
	})

	for _, item := range ready {
		w.pending.Delete(item)
		if _, err := w.file.WriteAt(item.data, item.offset); err != nil {
			w.err = fmt.Errorf("overwrite at %d: %w", item.offset, err)
			return w.err
		}
	}
	return nil
}

func (w *Writer) close() error {
	if err := w.flushBelow(math.MaxInt64); err != nil {
		return err
	}
	if len(w.appends) == 0 {
		return nil
	}
	if _, err := w.file.WriteAt(w.appends, w.size); err != nil {
		return fmt.Errorf("append at %d: %w", w.size, err)
	}
	w.appends = nil
	return nil
}

// Update runs a forward pass over the records present when the pass
// starts. ondocuments may overwrite or append through w.
func (r *Reader) Update(ondocuments func(records []Record, w *Writer) bool) error {

	f, size, err := r.open(os.O_RDWR)
	if err != nil || f == nil {
		return err
	}
	defer f.Close()

	w := newWriter(f, size)

	err = r.forward(f, size, func(records []Record) bool {
		next := ondocuments(records, w)
		if err := w.flushBelow(records[len(records)-1].End()); err != nil {
			return false
		}
		return next
	})
	if err != nil {
		return err
	}
	if w.err != nil {
		return w.err
	}

	return w.close()
}
