package query

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/SierraSoftworks/connor"
	"github.com/go-json-experiment/json"

	"github.com/fulldump/textdb/utils"
)

var ErrExpression = errors.New("bad expression")

// Predicate decides whether a document matches.
type Predicate interface {
	Evaluate(doc Document, arg any) bool
}

type PredicateFunc func(doc Document, arg any) bool

func (f PredicateFunc) Evaluate(doc Document, arg any) bool {
	return f(doc, arg)
}

// Mutator changes a document in place.
type Mutator interface {
	Apply(doc Document, arg any)
}

type MutatorFunc func(doc Document, arg any)

func (f MutatorFunc) Apply(doc Document, arg any) {
	f(doc, arg)
}

// Compiled expressions, keyed by their source text. Entries are never
// evicted: the same source always compiles to the same value.
var (
	filterCache sync.Map
	modifyCache sync.Map
	scalarCache sync.Map
	fieldsCache sync.Map
	sortCache   sync.Map
)

func cached[T any](cache *sync.Map, source string, compile func(string) (T, error)) (T, error) {
	if v, ok := cache.Load(source); ok {
		return v.(T), nil
	}
	compiled, err := compile(source)
	if err != nil {
		return compiled, err
	}
	v, _ := cache.LoadOrStore(source, compiled)
	return v.(T), nil
}

func expressionError(kind, source string, err error) error {
	return fmt.Errorf("%w: %s %q: %v", ErrExpression, kind, source, err)
}

// CompileFilter compiles a conditions document evaluated with connor.
// An empty source matches everything.
func CompileFilter(source string) (Predicate, error) {
	return cached(&filterCache, source, compileFilter)
}

func compileFilter(source string) (Predicate, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" || trimmed == "{}" || trimmed == "true" {
		return matchAll{}, nil
	}
	conditions := map[string]any{}
	if err := json.Unmarshal([]byte(trimmed), &conditions); err != nil {
		return nil, expressionError("filter", source, err)
	}
	return &conditionsPredicate{
		conditions:   conditions,
		placeholders: hasPlaceholders(conditions),
	}, nil
}

type matchAll struct{}

func (matchAll) Evaluate(Document, any) bool {
	return true
}

type conditionsPredicate struct {
	conditions   map[string]any
	placeholders bool
}

func (c *conditionsPredicate) Evaluate(doc Document, arg any) bool {
	conditions := c.conditions
	if c.placeholders {
		conditions = bindArgs(conditions, arg).(map[string]any)
	}
	ok, err := connor.Match(conditions, doc)
	return err == nil && ok
}

// bindPredicate resolves the placeholders once per builder.
func bindPredicate(p Predicate, arg any) Predicate {
	c, ok := p.(*conditionsPredicate)
	if !ok || !c.placeholders {
		return p
	}
	return &conditionsPredicate{
		conditions: bindArgs(c.conditions, arg).(map[string]any),
	}
}

// CompileModify compiles an update document. Operators are $set, $unset,
// $inc, $push and $rename; a document without operators is applied as a
// JSON merge patch.
func CompileModify(source string) (Mutator, error) {
	return cached(&modifyCache, source, compileModify)
}

var modifyOperators = []string{"$set", "$inc", "$push", "$rename", "$unset"}

func compileModify(source string) (Mutator, error) {

	doc := map[string]any{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(source)), &doc); err != nil {
		return nil, expressionError("modify", source, err)
	}

	operators := 0
	for key, value := range doc {
		if !strings.HasPrefix(key, "$") {
			continue
		}
		operators++
		if !slices.Contains(modifyOperators, key) {
			return nil, expressionError("modify", source, fmt.Errorf("unknown operator %s", key))
		}
		if _, ok := value.(map[string]any); !ok {
			return nil, expressionError("modify", source, fmt.Errorf("%s expects an object", key))
		}
	}

	placeholders := hasPlaceholders(doc)
	switch operators {
	case 0:
		return &mergePatch{patch: doc, placeholders: placeholders}, nil
	case len(doc):
		return &updateDocument{ops: doc, placeholders: placeholders}, nil
	}
	return nil, expressionError("modify", source, errors.New("operators and fields mixed"))
}

type mergePatch struct {
	patch        map[string]any
	placeholders bool
}

func (m *mergePatch) Apply(doc Document, arg any) {
	patch := m.patch
	if m.placeholders {
		patch = bindArgs(patch, arg).(map[string]any)
	}
	applyMergePatch(doc, patch)
}

type updateDocument struct {
	ops          map[string]any
	placeholders bool
}

func (u *updateDocument) Apply(doc Document, arg any) {
	ops := u.ops
	if u.placeholders {
		ops = bindArgs(ops, arg).(map[string]any)
	}
	for _, operator := range modifyOperators {
		fields, ok := ops[operator].(map[string]any)
		if !ok {
			continue
		}
		for _, path := range utils.GetKeys(fields) {
			value := fields[path]
			switch operator {
			case "$set":
				setPath(doc, path, cloneValue(value))
			case "$inc":
				current, _ := utils.ToFloat64(getPath(doc, path))
				delta, _ := utils.ToFloat64(value)
				setPath(doc, path, current+delta)
			case "$push":
				list, _ := getPath(doc, path).([]any)
				setPath(doc, path, append(slices.Clone(list), cloneValue(value)))
			case "$rename":
				target, ok := value.(string)
				if !ok {
					continue
				}
				if current, exists := lookupPath(doc, path); exists {
					deletePath(doc, path)
					setPath(doc, target, current)
				}
			case "$unset":
				deletePath(doc, path)
			}
		}
	}
}

func bindMutator(m Mutator, arg any) Mutator {
	switch v := m.(type) {
	case *mergePatch:
		if v.placeholders {
			return &mergePatch{patch: bindArgs(v.patch, arg).(map[string]any)}
		}
	case *updateDocument:
		if v.placeholders {
			return &updateDocument{ops: bindArgs(v.ops, arg).(map[string]any)}
		}
	}
	return m
}

const argPlaceholder = "$arg"

func isPlaceholder(s string) bool {
	return s == argPlaceholder || strings.HasPrefix(s, argPlaceholder+".")
}

func hasPlaceholders(value any) bool {
	switch v := value.(type) {
	case map[string]any:
		for _, item := range v {
			if hasPlaceholders(item) {
				return true
			}
		}
	case []any:
		return slices.ContainsFunc(v, hasPlaceholders)
	case string:
		return isPlaceholder(v)
	}
	return false
}

// bindArgs returns a copy of value where "$arg" is replaced by arg and
// "$arg.path" by the value found at path inside arg.
func bindArgs(value any, arg any) any {
	var fields map[string]any
	resolved := false
	resolve := func(s string) any {
		if s == argPlaceholder {
			return normalizeNumber(arg)
		}
		if !resolved {
			fields, _ = utils.AsMap(arg)
			resolved = true
		}
		return normalizeNumber(getPath(fields, strings.TrimPrefix(s, argPlaceholder+".")))
	}

	var bind func(value any) any
	bind = func(value any) any {
		switch v := value.(type) {
		case map[string]any:
			out := make(map[string]any, len(v))
			for k, item := range v {
				out[k] = bind(item)
			}
			return out
		case []any:
			out := make([]any, len(v))
			for i, item := range v {
				out[i] = bind(item)
			}
			return out
		case string:
			if isPlaceholder(v) {
				return resolve(v)
			}
		}
		return value
	}

	return bind(value)
}

// normalizeNumber converts Go numbers to float64, the type decoded
// documents carry.
func normalizeNumber(v any) any {
	if utils.IsNumber(v) {
		f, _ := utils.ToFloat64(v)
		return f
	}
	return v
}
