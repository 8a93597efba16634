package stream

import (
	"bytes"
	"fmt"
	"os"
)

// Reverse reads the records from the end of the file backwards, seeking
// block by block. Buffers follow the same limits as Forward.
func (r *Reader) Reverse(ondocuments func(records []Record) bool) error {

	f, size, err := r.open(os.O_RDONLY)
	if err != nil || f == nil {
		return err
	}
	defer f.Close()

	start := r.options.Start
	block := int64(r.options.BufferSize)
	if rs := int64(r.options.RecordSize); rs > 0 && block > rs {
		block -= block % rs
	}

	b := newBatcher(r.options, ondocuments)

	// tail is the beginning of a line whose end was read in the previous block
	var tail []byte
	pos := size
	for pos > start {
		n := block
		if pos-start < n {
			n = pos - start
		}
		pos -= n

		chunk := make([]byte, int(n)+len(tail))
		if _, err := f.ReadAt(chunk[:n], pos); err != nil {
			return fmt.Errorf("read %s at %d: %w", r.filename, pos, err)
		}
		copy(chunk[n:], tail)

		end := len(chunk)
		for {
			i := bytes.LastIndexByte(chunk[:end], '\n')
			if i < 0 {
				break
			}
			if line := chunk[i+1 : end]; len(line) > 0 {
				if !b.add(Record{Offset: pos + int64(i) + 1, Line: line}) {
					return nil
				}
			}
			end = i
		}
		tail = chunk[:end]
	}

	if len(tail) > 0 {
		if !b.add(Record{Offset: start, Line: tail}) {
			return nil
		}
	}

	b.flush()
	return nil
}
