package utils

import (
	"maps"
	"slices"
)

// GetKeys returns the sorted keys of m.
func GetKeys[T any](m map[string]T) []string {
	return slices.Sorted(maps.Keys(m))
}
