package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-json-experiment/json"

	"github.com/fulldump/textdb/utils"
)

const Delimiter = '|'

// Status markers, first byte of every record.
const (
	Live    byte = '+'
	Removed byte = '-'
	Escaped byte = '*'
)

// Slack budget reserved per column on insert for unsized schemas.
const (
	stringSlack    = 4
	numberSlack    = 2
	emptyDateSlack = 10
	objectSlack    = 4
)

var (
	escaper   = strings.NewReplacer("|", "%7C", "\n", "%0A", "\r", "%0D")
	unescaper = strings.NewReplacer("%7C", "|", "%0A", "\n", "%0D", "\r")
)

// Slot is the on-disk footprint of a decoded record.
type Slot struct {
	Length int // bytes, newline excluded
	Slack  int // length of the slack segment, -1 when the record has none
}

// Decode parses a record line. ok is false for tombstones and lines that
// are not records. Values present in cache are taken from it instead of
// being decoded again.
func (s *Schema) Decode(line []byte, cache map[string]any) (doc map[string]any, slot Slot, ok bool) {

	slot = Slot{Length: len(line), Slack: -1}
	if len(line) == 0 || (line[0] != Live && line[0] != Escaped) {
		return nil, slot, false
	}
	escaped := line[0] == Escaped

	parts := strings.Split(string(line), string(Delimiter))
	if !s.Sized() && len(parts) == len(s.Columns)+2 {
		slot.Slack = len(parts[len(parts)-1])
	}

	doc = make(map[string]any, len(s.Columns))
	for _, c := range s.Columns {
		if cached, found := cache[c.Name]; found && cached != nil {
			doc[c.Name] = cached
			continue
		}

		raw := ""
		if c.Position+1 < len(parts) {
			raw = parts[c.Position+1]
		}
		if s.Sized() {
			raw = strings.TrimRight(raw, " ")
		}
		doc[c.Name] = decodeValue(c, raw, escaped)
	}

	return doc, slot, true
}

func decodeValue(c *Column, raw string, escaped bool) any {
	switch c.Type {
	case Number:
		return parseNumber(raw)
	case Boolean:
		return raw == "1" || raw == "true" || raw == "on"
	case Date:
		return parseDate(raw)
	case Object:
		if raw == "" {
			return nil
		}
		if escaped {
			raw = unescaper.Replace(raw)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil
		}
		return value
	}
	if escaped {
		return unescaper.Replace(raw)
	}
	return raw
}

// Encode renders doc as a record line without the trailing newline.
//
// slot is the length of the line being replaced, or 0 on insert. Sized
// schemas always produce RecordSize()-1 bytes. Unsized schemas reuse the
// previous slot when the new encoding fits, padding the remainder as slack;
// otherwise a fresh allocation is produced and the caller has to tombstone
// the old line and append the new one.
func (s *Schema) Encode(doc map[string]any, slot int) ([]byte, error) {

	sized := s.Sized()
	escaped := false
	slack := 0

	var b strings.Builder
	b.WriteByte(Live)

	for _, c := range s.Columns {
		value := doc[c.Name]
		text := ""

		switch c.Type {
		case String:
			text = stringValue(value)
			if e, ok := escape(text); ok {
				text, escaped = e, true
			}
			if sized {
				text = fit(text, c.Size)
			} else {
				if c.Size > 0 {
					text = truncate(text, c.Size)
				}
				slack += stringSlack
			}

		case Number:
			n, _ := utils.ToFloat64(value)
			if sized {
				text = fit(formatNumberWidth(n, c.Size), c.Size)
			} else {
				text = formatNumber(n)
				slack += numberSlack
			}

		case Boolean:
			text = "0"
			if truthy(value) {
				text = "1"
			}

		case Date:
			text = formatDate(value)
			if sized {
				text = fit(text, c.Size)
			} else if text == "" {
				slack += emptyDateSlack
			}

		case Object:
			if value != nil {
				raw, err := json.Marshal(value, json.Deterministic(true))
				if err != nil {
					return nil, fmt.Errorf("column '%s': %w", c.Name, err)
				}
				text = string(raw)
			}
			if e, ok := escape(text); ok {
				text, escaped = e, true
			}
			slack += objectSlack
		}

		b.WriteByte(Delimiter)
		b.WriteString(text)
	}

	line := []byte(b.String())
	if escaped {
		line[0] = Escaped
	}

	if sized {
		return append(line, Delimiter), nil
	}

	if slot > 0 {
		switch {
		case len(line) == slot:
			return line, nil
		case len(line) < slot:
			return padSlack(line, slot-len(line)), nil
		}
	}

	if s.Allocations && slack > 0 {
		line = padSlack(line, slack)
	}

	return line, nil
}

// padSlack appends a slack segment of n bytes: the delimiter plus n-1 dots.
func padSlack(line []byte, n int) []byte {
	line = append(line, Delimiter)
	for i := 1; i < n; i++ {
		line = append(line, '.')
	}
	return line
}

func escape(s string) (string, bool) {
	if !strings.ContainsAny(s, "|\n\r") {
		return s, false
	}
	return escaper.Replace(s), true
}

// fit truncates or pads s with spaces to exactly width bytes.
func fit(s string, width int) string {
	s = truncate(s, width)
	if n := width - len(s); n > 0 {
		s += strings.Repeat(" ", n)
	}
	return s
}

// truncate cuts s to at most width bytes without splitting a rune or an
// escape sequence.
func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	i := 0
	for i < len(s) {
		step := 1
		if s[i] == '%' && i+3 <= len(s) && isEscapeSequence(s[i:i+3]) {
			step = 3
		} else {
			_, step = utf8.DecodeRuneInString(s[i:])
		}
		if i+step > width {
			break
		}
		i += step
	}
	return s[:i]
}

func isEscapeSequence(s string) bool {
	return s == "%7C" || s == "%0A" || s == "%0D"
}

func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return formatDate(v)
	}
	if n, ok := utils.ToFloat64(value); ok {
		return formatNumber(n)
	}
	raw, err := json.Marshal(value, json.Deterministic(true))
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(raw)
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "1" || v == "true" || v == "on"
	}
	n, ok := utils.ToFloat64(value)
	return ok && n == 1
}

func formatNumber(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "0"
	}
	if math.Abs(n) < 1e21 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// formatNumberWidth loses precision before overflowing a fixed column.
func formatNumberWidth(n float64, width int) string {
	s := formatNumber(n)
	for p := 15; len(s) > width && p > 0; p-- {
		s = strconv.FormatFloat(n, 'g', p, 64)
	}
	return s
}

func parseNumber(raw string) float64 {
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

// formatDate renders epoch milliseconds.
func formatDate(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return strconv.FormatInt(v.UnixMilli(), 10)
	case *time.Time:
		if v == nil {
			return ""
		}
		return formatDate(*v)
	case string:
		if v == "" {
			return ""
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return strconv.FormatInt(t.UnixMilli(), 10)
		}
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return strconv.FormatInt(ms, 10)
		}
		return ""
	}
	if n, ok := utils.ToFloat64(value); ok {
		return strconv.FormatInt(int64(n), 10)
	}
	return ""
}

func parseDate(raw string) any {
	if raw == "" {
		return nil
	}
	if len(raw) > 10 && raw[10] == 'T' {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil
		}
		return t.UTC()
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return time.UnixMilli(ms).UTC()
}
