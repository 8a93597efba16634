package query

import (
	"errors"
	"strings"
)

// projection keeps only the included paths, or drops the excluded ones.
type projection struct {
	include []string
	exclude []string
}

func compileFields(source string) (*projection, error) {
	return cached(&fieldsCache, source, func(source string) (*projection, error) {
		p := &projection{}
		names := strings.FieldsFunc(source, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		for _, name := range names {
			if field, ok := strings.CutPrefix(name, "-"); ok {
				if field != "" {
					p.exclude = append(p.exclude, field)
				}
				continue
			}
			p.include = append(p.include, name)
		}
		if len(p.include) > 0 && len(p.exclude) > 0 {
			return nil, expressionError("fields", source, errors.New("inclusion and exclusion mixed"))
		}
		if len(p.include) == 0 && len(p.exclude) == 0 {
			return nil, nil
		}
		return p, nil
	})
}

// apply never modifies doc.
func (p *projection) apply(doc Document) Document {
	if p == nil {
		return doc
	}
	if len(p.include) > 0 {
		out := make(Document, len(p.include))
		for _, path := range p.include {
			if v, ok := lookupPath(doc, path); ok {
				setPath(out, path, v)
			}
		}
		return out
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	for _, path := range p.exclude {
		deletePath(out, path)
	}
	return out
}
