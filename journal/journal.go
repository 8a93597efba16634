// Package journal appends and reads the log and backup files of a
// collection. Each line is a JSON metadata envelope stamped with the date,
// a " | " separator and the JSON payload.
package journal

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var separator = []byte(" | ")

type Entry struct {
	Date    time.Time      `json:"date"`
	Meta    map[string]any `json:"meta"`
	Payload jsontext.Value `json:"payload"`
}

// Line builds one journal line, newline included. Metadata that is not an
// object is wrapped as {"meta": value}.
func Line(meta any, payload any, now time.Time) ([]byte, error) {

	envelope, err := json.Marshal(meta, json.Deterministic(true))
	if err != nil {
		return nil, fmt.Errorf("journal meta: %w", err)
	}
	if !gjson.ParseBytes(envelope).IsObject() {
		envelope, err = sjson.SetRawBytes([]byte(`{}`), "meta", envelope)
		if err != nil {
			return nil, fmt.Errorf("journal meta: %w", err)
		}
	}
	envelope, err = sjson.SetBytes(envelope, "date", now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("journal date: %w", err)
	}

	body, err := json.Marshal(payload, json.Deterministic(true))
	if err != nil {
		return nil, fmt.Errorf("journal payload: %w", err)
	}

	line := make([]byte, 0, len(envelope)+len(separator)+len(body)+1)
	line = append(line, envelope...)
	line = append(line, separator...)
	line = append(line, body...)
	line = append(line, '\n')
	return line, nil
}

// Append writes one line to filename, creating it when needed.
func Append(filename string, meta any, payload any) error {

	line, err := Line(meta, payload, time.Now())
	if err != nil {
		return err
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// Parse splits one line into its envelope and payload.
func Parse(line []byte) (*Entry, error) {

	line = bytes.TrimSpace(line)
	dec := jsontext.NewDecoder(bytes.NewReader(line))
	envelope, err := dec.ReadValue()
	if err != nil {
		return nil, fmt.Errorf("journal envelope: %w", err)
	}
	if envelope.Kind() != '{' {
		return nil, errors.New("journal envelope is not an object")
	}

	rest := bytes.TrimSpace(line[dec.InputOffset():])
	rest, found := bytes.CutPrefix(rest, []byte("|"))
	if !found {
		return nil, errors.New("journal separator not found")
	}

	entry := &Entry{
		Date:    gjson.GetBytes(envelope, "date").Time(),
		Meta:    map[string]any{},
		Payload: jsontext.Value(bytes.TrimSpace(rest)).Clone(),
	}
	if err := json.Unmarshal(envelope, &entry.Meta); err != nil {
		return nil, fmt.Errorf("journal envelope: %w", err)
	}
	delete(entry.Meta, "date")
	return entry, nil
}

// Read calls fn for every well formed line of filename until fn returns
// false. A missing file has no entries.
func Read(filename string, fn func(entry *Entry) bool) error {

	f, err := os.Open(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			entry, perr := Parse(line)
			if perr == nil && !fn(entry) {
				return nil
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
	}
}
