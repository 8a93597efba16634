package query

import (
	"strings"
)

// applyMergePatch merges patch into doc following RFC 7396: null removes a
// key, objects merge recursively and anything else replaces.
func applyMergePatch(doc map[string]any, patch map[string]any) {
	for key, item := range patch {
		if item == nil {
			delete(doc, key)
			continue
		}

		p, isObject := item.(map[string]any)
		if !isObject {
			doc[key] = cloneValue(item)
			continue
		}

		target, ok := doc[key].(map[string]any)
		if !ok {
			target = map[string]any{}
		} else {
			target = cloneValue(target).(map[string]any)
		}
		applyMergePatch(target, p)
		doc[key] = target
	}
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		cloned := make(map[string]any, len(v))
		for k, item := range v {
			cloned[k] = cloneValue(item)
		}
		return cloned
	case []any:
		if v == nil {
			return v
		}
		cloned := make([]any, len(v))
		for i, item := range v {
			cloned[i] = cloneValue(item)
		}
		return cloned
	}
	return value
}

// lookupPath resolves "a.b.c" through nested objects. A key containing
// dots is found before descending.
func lookupPath(doc map[string]any, path string) (any, bool) {
	if doc == nil {
		return nil, false
	}
	if v, ok := doc[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	child, ok := doc[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookupPath(child, rest)
}

func getPath(doc map[string]any, path string) any {
	v, _ := lookupPath(doc, path)
	return v
}

// setPath creates the intermediate objects it needs. Intermediate objects
// are copied so the change does not leak into documents sharing them.
func setPath(doc map[string]any, path string, value any) {
	head, rest, found := strings.Cut(path, ".")
	if !found {
		doc[path] = value
		return
	}
	if _, direct := doc[path]; direct {
		doc[path] = value
		return
	}
	child, ok := doc[head].(map[string]any)
	if ok {
		child = cloneValue(child).(map[string]any)
	} else {
		child = map[string]any{}
	}
	setPath(child, rest, value)
	doc[head] = child
}

func deletePath(doc map[string]any, path string) {
	if _, direct := doc[path]; direct {
		delete(doc, path)
		return
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return
	}
	child, ok := doc[head].(map[string]any)
	if !ok {
		return
	}
	child = cloneValue(child).(map[string]any)
	deletePath(child, rest)
	doc[head] = child
}
