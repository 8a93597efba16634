package query

import (
	"errors"
	"testing"

	. "github.com/fulldump/biff"
)

func TestFilter(t *testing.T) {

	doc := Document{"name": "Fulanez", "city": "Madrid"}

	AssertTrue(New().Filter(``, nil).Match(doc))
	AssertTrue(New().Filter(`{}`, nil).Match(doc))
	AssertTrue(New().Filter(`{"name":"Fulanez"}`, nil).Match(doc))
	AssertFalse(New().Filter(`{"name":"Menganez"}`, nil).Match(doc))
}

func TestFilter_Placeholders(t *testing.T) {

	doc := Document{"name": "Fulanez", "city": "Madrid"}
	source := `{"name":"$arg.name"}`

	AssertTrue(New().Filter(source, map[string]any{"name": "Fulanez"}).Match(doc))
	AssertFalse(New().Filter(source, map[string]any{"name": "Menganez"}).Match(doc))
	AssertTrue(New().Filter(`{"city":"$arg"}`, "Madrid").Match(doc))
}

func TestFilter_Cached(t *testing.T) {

	a, err := CompileFilter(`{"cached":"yes"}`)
	AssertNil(err)
	b, err := CompileFilter(`{"cached":"yes"}`)
	AssertNil(err)

	AssertTrue(a == b)
}

func TestFilterWith(t *testing.T) {

	older := PredicateFunc(func(doc Document, arg any) bool {
		return doc["age"].(float64) > arg.(float64)
	})

	AssertTrue(New().FilterWith(older, 30.0).Match(Document{"age": 33.0}))
	AssertFalse(New().FilterWith(older, 40.0).Match(Document{"age": 33.0}))
}

func TestModify_Operators(t *testing.T) {

	doc := Document{
		"name":    "Fulanez",
		"visits":  1.0,
		"tags":    []any{"a"},
		"old":     "value",
		"removed": true,
	}

	New().Modify(`{
		"$set": {"address.city": "Madrid"},
		"$inc": {"visits": 2},
		"$push": {"tags": "b"},
		"$rename": {"old": "new"},
		"$unset": {"removed": ""}
	}`, nil).Apply(doc)

	AssertEqual(doc, Document{
		"name":    "Fulanez",
		"visits":  3.0,
		"tags":    []any{"a", "b"},
		"new":     "value",
		"address": map[string]any{"city": "Madrid"},
	})
}

func TestModify_MergePatch(t *testing.T) {

	doc := Document{
		"name":    "Fulanez",
		"address": map[string]any{"city": "Madrid", "zip": "28001"},
	}

	New().Modify(`{"name":null,"address":{"zip":"41001"},"age":33}`, nil).Apply(doc)

	AssertEqual(doc, Document{
		"address": map[string]any{"city": "Madrid", "zip": "41001"},
		"age":     33.0,
	})
}

func TestModify_Placeholders(t *testing.T) {

	doc := Document{"name": "Fulanez"}

	New().Modify(`{"$set":{"name":"$arg.name","age":"$arg.age"}}`, map[string]any{
		"name": "Menganez",
		"age":  40,
	}).Apply(doc)

	AssertEqual(doc, Document{"name": "Menganez", "age": 40.0})
}

func TestModify_Errors(t *testing.T) {

	AssertTrue(errors.Is(New().Modify(`{"$set":{"a":1},"b":2}`, nil).Err(), ErrExpression))
	AssertTrue(errors.Is(New().Modify(`{"$explode":{"a":1}}`, nil).Err(), ErrExpression))
	AssertTrue(errors.Is(New().Modify(`{"$set":3}`, nil).Err(), ErrExpression))
	AssertTrue(errors.Is(New().Modify(`nope`, nil).Err(), ErrExpression))
}

func TestModify_DoesNotLeakSharedValues(t *testing.T) {

	shared := map[string]any{"city": "Madrid"}
	a := Document{"address": shared}
	b := Document{"address": shared}

	New().Modify(`{"$set":{"address.city":"Sevilla"}}`, nil).Apply(a)

	AssertEqual(a["address"], map[string]any{"city": "Sevilla"})
	AssertEqual(b["address"], map[string]any{"city": "Madrid"})
}

func TestScalar(t *testing.T) {

	docs := []Document{
		{"kind": "a", "price": 10.0},
		{"kind": "b", "price": 5.0},
		{"kind": "a", "price": 30.0},
		{"kind": "a"},
	}

	fold := func(source string, arg any) any {
		r, err := CompileScalar(source)
		AssertNil(err)
		var acc any
		for _, doc := range docs {
			acc = r.Fold(acc, doc, arg)
		}
		if f, ok := r.(Finisher); ok {
			acc = f.Finish(acc)
		}
		return acc
	}

	AssertEqual(fold("count", nil), 4)
	AssertEqual(fold("sum:price", nil), 45.0)
	AssertEqual(fold("sum", "price"), 45.0)
	AssertEqual(fold("min:price", nil), 5.0)
	AssertEqual(fold("max:price", nil), 30.0)
	AssertEqual(fold("avg:price", nil), 15.0)
	AssertEqual(fold(`{"op":"group","field":"kind"}`, nil), map[string]int{"a": 3, "b": 1})

	_, err := CompileScalar("median:price")
	AssertTrue(errors.Is(err, ErrExpression))
}
