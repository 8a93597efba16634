// Package record implements the document model codec: one JSON object per
// line, tombstoned in place by overwriting its first byte.
package record

import (
	"errors"
	"time"

	"github.com/go-json-experiment/json"
)

const (
	Open    byte = '{'
	Removed byte = '-'
)

var ErrRemoved = errors.New("record removed")

// Encode serializes doc as a single JSON line without the trailing newline.
// Every `true` literal is followed by a space so a boolean can flip in place
// without changing the record length.
func Encode(doc any) ([]byte, error) {
	raw, err := json.Marshal(doc, json.Deterministic(true))
	if err != nil {
		return nil, err
	}
	return padBooleans(raw), nil
}

// Decode parses a live line.
func Decode(line []byte) (map[string]any, error) {
	if IsRemoved(line) {
		return nil, ErrRemoved
	}
	doc := map[string]any{}
	if err := json.Unmarshal(line, &doc); err != nil {
		return nil, err
	}
	reviveDates(doc)
	return doc, nil
}

func IsRemoved(line []byte) bool {
	return len(line) == 0 || line[0] != Open
}

// Tombstone returns a copy of line marked as removed. The length is kept.
func Tombstone(line []byte) []byte {
	out := make([]byte, len(line))
	copy(out, line)
	if len(out) > 0 {
		out[0] = Removed
	}
	return out
}

// padBooleans inserts a space after every true literal found outside strings.
func padBooleans(raw []byte) []byte {

	n := 0
	inString := false
	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; {
		case inString && c == '\\':
			i++
		case c == '"':
			inString = !inString
		case !inString && c == 't':
			n++
			i += 3
		}
	}
	if n == 0 {
		return raw
	}

	out := make([]byte, 0, len(raw)+n)
	inString = false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		out = append(out, c)
		switch {
		case inString && c == '\\':
			i++
			out = append(out, raw[i])
		case c == '"':
			inString = !inString
		case !inString && c == 't':
			out = append(out, raw[i+1:i+4]...)
			out = append(out, ' ')
			i += 3
		}
	}
	return out
}

// reviveDates turns RFC 3339 timestamps back into time.Time, recursively.
func reviveDates(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for k, item := range v {
			v[k] = reviveDates(item)
		}
	case []any:
		for i, item := range v {
			v[i] = reviveDates(item)
		}
	case string:
		if looksLikeDate(v) {
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return t
			}
		}
	}
	return value
}

func looksLikeDate(s string) bool {
	return len(s) >= 20 && len(s) <= 35 && s[4] == '-' && s[7] == '-' && s[10] == 'T'
}
