package collection

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fulldump/textdb/query"
	"github.com/fulldump/textdb/record"
	"github.com/fulldump/textdb/schema"
)

type Kind string

const (
	Document Kind = "document"
	Table    Kind = "table"
)

// Extensions for the data file, the log journal and the backup journal.
var extensions = map[Kind][3]string{
	Document: {".ndb", ".nlog", ".nbk"},
	Table:    {".tdb", ".tlog", ".tbk"},
}

// Filename returns the data file of collection name inside dir.
func Filename(dir, name string, kind Kind) string {
	return filepath.Join(dir, name+extensions[kind][0])
}

// ParseFilename recognizes data files by extension.
func ParseFilename(filename string) (name string, kind Kind, ok bool) {
	ext := filepath.Ext(filename)
	for k, e := range extensions {
		if e[0] == ext {
			return strings.TrimSuffix(filepath.Base(filename), ext), k, true
		}
	}
	return "", "", false
}

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case Document, "":
		return Document, nil
	case Table:
		return Table, nil
	}
	return "", fmt.Errorf("unknown collection type '%s'", s)
}

// codec translates between record lines and documents for one model.
type codec interface {
	// decode returns ok=false for tombstones and unreadable lines.
	decode(line []byte) (doc query.Document, ok bool)
	// encode renders doc for a slot of the given length, 0 on insert. A
	// result with a different length does not fit the slot.
	encode(doc query.Document, slot int) ([]byte, error)
}

type documentCodec struct{}

func (documentCodec) decode(line []byte) (query.Document, bool) {
	doc, err := record.Decode(line)
	if err != nil {
		return nil, false
	}
	return doc, true
}

// encode pads shorter documents with spaces, JSON ignores them.
func (documentCodec) encode(doc query.Document, slot int) ([]byte, error) {
	line, err := record.Encode(doc)
	if err != nil {
		return nil, err
	}
	if slot > 0 && len(line) < slot {
		line = append(line, bytes.Repeat([]byte{' '}, slot-len(line))...)
	}
	return line, nil
}

type tableCodec struct {
	schema *schema.Schema
}

func (t tableCodec) decode(line []byte) (query.Document, bool) {
	doc, _, ok := t.schema.Decode(line, nil)
	return doc, ok
}

func (t tableCodec) encode(doc query.Document, slot int) ([]byte, error) {
	return t.schema.Encode(doc, slot)
}

// tombstone is written over the first byte of a removed record. Both
// models share it.
var tombstone = []byte{record.Removed}
