package utils

import (
	"encoding/json"
)

// Remarshal copies input into output through its JSON representation.
func Remarshal(input any, output any) error {
	b, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, output)
}

// AsMap returns v as a generic JSON object. Maps are returned as they are,
// anything else goes through Remarshal.
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return m, true
	}
	m := map[string]any{}
	if err := Remarshal(v, &m); err != nil {
		return nil, false
	}
	return m, true
}
