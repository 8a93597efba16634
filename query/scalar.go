package query

import (
	"fmt"
	"strings"

	"github.com/go-json-experiment/json"

	"github.com/fulldump/textdb/utils"
)

// Reducer folds accepted documents into an aggregate. acc is nil on the
// first call.
type Reducer interface {
	Fold(acc any, doc Document, arg any) any
}

type ReducerFunc func(acc any, doc Document, arg any) any

func (f ReducerFunc) Fold(acc any, doc Document, arg any) any {
	return f(acc, doc, arg)
}

// Finisher is implemented by reducers whose aggregate needs a last step.
type Finisher interface {
	Finish(acc any) any
}

// CompileScalar accepts "op[:field]" or {"op":"...","field":"..."}. When
// the field is omitted the builder argument is used as field name.
func CompileScalar(source string) (Reducer, error) {
	return cached(&scalarCache, source, compileScalar)
}

func compileScalar(source string) (Reducer, error) {

	trimmed := strings.TrimSpace(source)
	var op, field string
	if strings.HasPrefix(trimmed, "{") {
		spec := struct {
			Op    string `json:"op"`
			Field string `json:"field"`
		}{}
		if err := json.Unmarshal([]byte(trimmed), &spec); err != nil {
			return nil, expressionError("scalar", source, err)
		}
		op, field = spec.Op, spec.Field
	} else {
		op, field, _ = strings.Cut(trimmed, ":")
	}
	op = strings.ToLower(strings.TrimSpace(op))
	field = strings.TrimSpace(field)

	switch op {
	case "count":
		return countReducer{}, nil
	case "sum":
		return sumReducer{field: field}, nil
	case "min":
		return extremeReducer{field: field, sign: -1}, nil
	case "max":
		return extremeReducer{field: field, sign: 1}, nil
	case "avg", "average":
		return avgReducer{field: field}, nil
	case "group":
		return groupReducer{field: field}, nil
	}
	return nil, expressionError("scalar", source, fmt.Errorf("unknown operation '%s'", op))
}

func fieldOf(field string, arg any) string {
	if field != "" {
		return field
	}
	s, _ := arg.(string)
	return s
}

type countReducer struct{}

func (countReducer) Fold(acc any, _ Document, _ any) any {
	n, _ := acc.(int)
	return n + 1
}

type sumReducer struct {
	field string
}

func (r sumReducer) Fold(acc any, doc Document, arg any) any {
	total, _ := acc.(float64)
	if v, ok := utils.ToFloat64(getPath(doc, fieldOf(r.field, arg))); ok {
		total += v
	}
	return total
}

type extremeReducer struct {
	field string
	sign  int
}

func (r extremeReducer) Fold(acc any, doc Document, arg any) any {
	v := getPath(doc, fieldOf(r.field, arg))
	if v == nil {
		return acc
	}
	if acc == nil || compareValues(v, acc, nil)*r.sign > 0 {
		return v
	}
	return acc
}

type average struct {
	sum float64
	n   int
}

type avgReducer struct {
	field string
}

func (r avgReducer) Fold(acc any, doc Document, arg any) any {
	a, _ := acc.(*average)
	if a == nil {
		a = &average{}
	}
	if v, ok := utils.ToFloat64(getPath(doc, fieldOf(r.field, arg))); ok {
		a.sum += v
		a.n++
	}
	return a
}

func (avgReducer) Finish(acc any) any {
	a, _ := acc.(*average)
	if a == nil || a.n == 0 {
		return nil
	}
	return a.sum / float64(a.n)
}

type groupReducer struct {
	field string
}

func (r groupReducer) Fold(acc any, doc Document, arg any) any {
	groups, _ := acc.(map[string]int)
	if groups == nil {
		groups = map[string]int{}
	}
	groups[fmt.Sprint(getPath(doc, fieldOf(r.field, arg)))]++
	return groups
}
