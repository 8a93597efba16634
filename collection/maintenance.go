package collection

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fulldump/textdb/query"
	"github.com/fulldump/textdb/schema"
	"github.com/fulldump/textdb/stream"
)

func (st state) header() []byte {
	if st.schema == nil {
		return nil
	}
	return st.schema.Header()
}

func (c *Collection) clear(st state) error {
	err := os.WriteFile(c.filename, st.header(), 0666)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	c.logger.Info("collection cleared")
	return nil
}

// clean compacts the data file. Running it twice leaves the same file.
func (c *Collection) clean(st state) error {

	before, after := 0, 0
	err := c.rewrite(st.header(), st, func(line []byte, w *bufio.Writer) error {
		before++
		if len(line) == 0 || line[0] == tombstone[0] {
			return nil
		}
		after++
		w.Write(line)
		return w.WriteByte('\n')
	})
	if err != nil {
		return fmt.Errorf("clean: %w", err)
	}

	c.logger.Info("collection cleaned", "records", before, "kept", after)
	return nil
}

func (c *Collection) drop() error {
	for _, filename := range []string{c.filename, c.logname, c.backupname} {
		err := os.Remove(filename)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("drop: %w", err)
		}
	}
	c.logger.Info("collection dropped")
	return nil
}

func (c *Collection) markDropped() {
	c.dropped = true
	c.gone.Store(true)
}

// extend migrates a table to s: every live record is decoded with the
// current schema and encoded again with the new one, one record at a time.
// New columns declared as name=source take the value of source.
func (c *Collection) extend(st *state, s *schema.Schema) error {

	if c.options.NoAllocations {
		s.Allocations = false
	}

	if st.schema.Equal(s) {
		return nil
	}

	if st.schema == nil {
		if err := c.rewrite(s.Header(), *st, nil); err != nil {
			return fmt.Errorf("alter: %w", err)
		}
		st.schema, st.start, st.codec = s, int64(len(s.Header())), tableCodec{schema: s}
		return nil
	}

	old := tableCodec{schema: st.schema}
	migrated := 0
	err := c.rewrite(s.Header(), *st, func(line []byte, w *bufio.Writer) error {
		doc, ok := old.decode(line)
		if !ok {
			return nil
		}
		next := query.Document{}
		for _, column := range s.Columns {
			source := column.Name
			if column.CopyFrom != "" {
				source = column.CopyFrom
			}
			next[column.Name] = doc[source]
		}
		encoded, err := s.Encode(next, 0)
		if err != nil {
			return err
		}
		migrated++
		w.Write(encoded)
		return w.WriteByte('\n')
	})
	if err != nil {
		return fmt.Errorf("alter: %w", err)
	}

	c.logger.Info("table altered", "from", st.schema.String(), "to", s.String(), "records", migrated)
	st.schema, st.start, st.codec = s, int64(len(s.Header())), tableCodec{schema: s}
	return nil
}

// rewrite streams the data file into a temporary one through each and
// replaces the original with it. A nil each only writes the header.
func (c *Collection) rewrite(header []byte, st state, each func(line []byte, w *bufio.Writer) error) error {

	tmp := c.filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	w := bufio.NewWriter(f)
	w.Write(header)

	if each != nil {
		var failure error
		err = c.reader(st).Forward(func(records []stream.Record) bool {
			for _, r := range records {
				if failure = each(r.Line, w); failure != nil {
					return false
				}
			}
			return true
		})
		if err == nil {
			err = failure
		}
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	return os.Rename(tmp, c.filename)
}
