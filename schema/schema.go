// Package schema implements the table model: the column mini-language and
// the codec that turns typed rows into delimited text lines and back.
package schema

import (
	"fmt"
	"strconv"
	"strings"
)

type Type int

const (
	String Type = iota + 1
	Number
	Boolean
	Date
	Object
)

func (t Type) String() string {
	switch t {
	case Number:
		return "number"
	case Boolean:
		return "boolean"
	case Date:
		return "date"
	case Object:
		return "object"
	}
	return "string"
}

const (
	DefaultNumberSize = 16
	BooleanSize       = 1
	DateSize          = 13
)

type Column struct {
	Name     string
	Type     Type
	Size     int // bytes, 0 when variable
	Position int
	CopyFrom string // column of the previous schema this one is filled from on alter
}

type Schema struct {
	Columns []*Column

	// Allocations reserves slack bytes after every unsized record so
	// later updates can be rewritten in place.
	Allocations bool

	index map[string]*Column
	size  int
}

// Parse reads a definition like "id:string(10);price:number|active:boolean".
// Tokens are separated by ';', ',' or '|'.
func Parse(definition string) (*Schema, error) {

	s := &Schema{
		index:       map[string]*Column{},
		Allocations: true,
	}

	tokens := strings.FieldsFunc(definition, func(r rune) bool {
		return r == ';' || r == ',' || r == '|'
	})

	sized := true
	size := 2
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		column, err := parseColumn(token)
		if err != nil {
			return nil, err
		}
		if _, exists := s.index[column.Name]; exists {
			return nil, fmt.Errorf("column '%s' declared twice", column.Name)
		}

		if column.Size == 0 {
			sized = false
		}

		column.Position = len(s.Columns)
		s.Columns = append(s.Columns, column)
		s.index[column.Name] = column
		size += column.Size + 1
	}

	if len(s.Columns) == 0 {
		return nil, fmt.Errorf("empty schema definition")
	}

	if sized {
		s.Allocations = false
		s.size = size + 1 // newline
	}

	return s, nil
}

func parseColumn(token string) (*Column, error) {

	name, kind, _ := strings.Cut(token, ":")
	name = strings.TrimSpace(name)
	kind = strings.ToLower(strings.TrimSpace(kind))

	column := &Column{}

	if n, copyFrom, found := strings.Cut(name, "="); found {
		name = strings.TrimSpace(n)
		column.CopyFrom = strings.TrimSpace(copyFrom)
	}
	if name == "" {
		return nil, fmt.Errorf("column without name in '%s'", token)
	}
	column.Name = name

	size := 0
	if i := strings.Index(kind, "("); i >= 0 {
		j := strings.LastIndex(kind, ")")
		if j < i {
			return nil, fmt.Errorf("column '%s': unbalanced size in '%s'", name, kind)
		}
		n, err := strconv.Atoi(strings.TrimSpace(kind[i+1 : j]))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("column '%s': bad size '%s'", name, kind[i+1:j])
		}
		size = n
		kind = strings.TrimSpace(kind[:i])
	}

	switch kind {
	case "number":
		column.Type = Number
		if size == 0 {
			size = DefaultNumberSize
		}
	case "boolean", "bool":
		column.Type = Boolean
		size = BooleanSize
	case "date":
		column.Type = Date
		size = DateSize
	case "object":
		column.Type = Object
		size = 0
	default:
		column.Type = String
	}
	column.Size = size

	return column, nil
}

// Sized reports whether every record has the same byte length.
func (s *Schema) Sized() bool {
	return s.size > 0
}

// RecordSize is the byte length of every record including its newline, or
// 0 for unsized schemas.
func (s *Schema) RecordSize() int {
	return s.size
}

func (s *Schema) Column(name string) (*Column, bool) {
	c, ok := s.index[name]
	return c, ok
}

func (s *Schema) Keys() []string {
	keys := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		keys[i] = c.Name
	}
	return keys
}

// String returns the canonical definition. The default number size is
// omitted and copy sources are not persisted.
func (s *Schema) String() string {
	parts := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		kind := c.Type.String()
		switch c.Type {
		case Number:
			if c.Size != DefaultNumberSize {
				kind += "(" + strconv.Itoa(c.Size) + ")"
			}
		case String:
			if c.Size > 0 {
				kind += "(" + strconv.Itoa(c.Size) + ")"
			}
		}
		parts = append(parts, c.Name+":"+kind)
	}
	return strings.Join(parts, string(Delimiter))
}

// Header is the first line of a table file.
func (s *Schema) Header() []byte {
	return []byte(s.String() + "\n")
}

// Equal compares canonical forms.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.String() == other.String()
}
