package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
)

// Forward reads every record from Start to the end of the file in file
// order. A missing file is an empty pass. Returning false from ondocuments
// ends the pass early.
func (r *Reader) Forward(ondocuments func(records []Record) bool) error {

	f, size, err := r.open(os.O_RDONLY)
	if err != nil || f == nil {
		return err
	}
	defer f.Close()

	return r.forward(f, size, ondocuments)
}

func (r *Reader) forward(f *os.File, limit int64, ondocuments func(records []Record) bool) error {

	start := r.options.Start
	if limit <= start {
		return nil
	}

	section := io.NewSectionReader(f, start, limit-start)
	br := bufio.NewReaderSize(section, r.options.BufferSize)
	b := newBatcher(r.options, ondocuments)

	offset := start
	for {
		line, err := br.ReadBytes('\n')
		if n := len(line); n > 0 {
			content := bytes.TrimSuffix(line, []byte{'\n'})
			if len(content) > 0 && !b.add(Record{Offset: offset, Line: content}) {
				return nil
			}
			offset += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s at %d: %w", r.filename, offset, err)
		}
	}

	b.flush()
	return nil
}
