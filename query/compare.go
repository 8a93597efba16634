package query

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/fulldump/textdb/utils"
)

type sortSpec struct {
	Field      string
	Descending bool
}

func compileSort(spec string) (*sortSpec, error) {
	return cached(&sortCache, spec, func(spec string) (*sortSpec, error) {
		field := strings.TrimSpace(spec)
		descending := false
		switch {
		case strings.HasSuffix(field, "_desc"):
			field, descending = strings.TrimSuffix(field, "_desc"), true
		case strings.HasSuffix(field, "_asc"):
			field = strings.TrimSuffix(field, "_asc")
		}
		if field == "" {
			return nil, expressionError("sort", spec, fmt.Errorf("missing field"))
		}
		return &sortSpec{Field: field, Descending: descending}, nil
	})
}

// comparator orders documents by the sort field, missing values last in
// both directions. It owns a collator, so it must not be shared between
// goroutines.
func (s *sortSpec) comparator() func(a, b Document) int {
	collator := collate.New(language.Und)
	return func(a, b Document) int {
		va, vb := getPath(a, s.Field), getPath(b, s.Field)
		c := compareValues(va, vb, collator)
		if s.Descending && va != nil && vb != nil {
			return -c
		}
		return c
	}
}

// compareValues orders missing values last. Strings use collation when a
// collator is given, numbers and dates compare numerically and true goes
// before false.
func compareValues(a, b any, collator *collate.Collator) int {

	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}

	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}

	switch va := a.(type) {
	case string:
		vb := b.(string)
		if collator != nil {
			return collator.CompareString(va, vb)
		}
		return strings.Compare(va, vb)
	case bool:
		vb := b.(bool)
		switch {
		case va == vb:
			return 0
		case va:
			return -1
		}
		return 1
	case time.Time:
		return va.Compare(b.(time.Time))
	}

	if ra == rankNumber {
		fa, _ := utils.ToFloat64(a)
		fb, _ := utils.ToFloat64(b)
		return cmp.Compare(fa, fb)
	}
	return 0
}

const (
	rankNumber = iota
	rankDate
	rankString
	rankBool
	rankOther
)

func rank(v any) int {
	switch v.(type) {
	case string:
		return rankString
	case bool:
		return rankBool
	case time.Time:
		return rankDate
	}
	if utils.IsNumber(v) {
		return rankNumber
	}
	return rankOther
}
