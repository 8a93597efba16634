package query

import (
	"slices"
)

// TopK keeps the best limit documents under compare, best first.
//
// Documents are pushed unsorted until the limit is reached, then sorted
// once. After that a candidate is first checked against the worst kept
// document and discarded if it is not better; otherwise the midpoint picks
// the half where the insertion point is searched. Ties keep arrival order.
// A limit <= 0 keeps everything.
type TopK struct {
	limit   int
	items   []Document
	sorted  bool
	compare func(a, b Document) int
}

func NewTopK(limit int, compare func(a, b Document) int) *TopK {
	return &TopK{
		limit:   limit,
		compare: compare,
	}
}

func (t *TopK) Push(doc Document) {

	if t.limit <= 0 || len(t.items) < t.limit {
		t.items = append(t.items, doc)
		if len(t.items) == t.limit {
			slices.SortStableFunc(t.items, t.compare)
			t.sorted = true
		}
		return
	}

	last := len(t.items) - 1
	if t.compare(doc, t.items[last]) >= 0 {
		return
	}

	i := 0
	if mid := last / 2; t.compare(doc, t.items[mid]) >= 0 {
		i = mid + 1
	}
	for i < last && t.compare(doc, t.items[i]) >= 0 {
		i++
	}

	copy(t.items[i+1:], t.items[i:last])
	t.items[i] = doc
}

// Items returns the kept documents in order.
func (t *TopK) Items() []Document {
	if !t.sorted {
		slices.SortStableFunc(t.items, t.compare)
		t.sorted = true
	}
	return t.items
}

func (t *TopK) Len() int {
	return len(t.items)
}
