package query

import (
	"testing"

	. "github.com/fulldump/biff"
)

func numbers(n int) []Document {
	docs := make([]Document, n)
	for i := range docs {
		parity := "even"
		if i%2 == 1 {
			parity = "odd"
		}
		docs[i] = Document{"n": float64(i), "parity": parity}
	}
	return docs
}

func run(docs []Document, builders ...*Builder) {
	c := NewCoordinator(builders...)
	for i := 0; i < len(docs); i += 7 {
		end := min(i+7, len(docs))
		if !c.Compare(docs[i:end]) {
			break
		}
	}
	c.Done(nil, nil)
}

func TestCoordinator_SkipTake(t *testing.T) {

	m := 50
	docs := numbers(m)

	for _, sorted := range []bool{false, true} {
		for _, skip := range []int{0, 1, 10, 49, 50, 80} {
			for _, take := range []int{1, 5, 50, 100} {

				b := New().Skip(skip).Take(take)
				if sorted {
					b.Sort("n_desc")
				}
				run(docs, b)

				expected := min(max(0, m-skip), take)
				AssertEqual(len(b.Items), expected)
				AssertEqual(b.Counter, expected)
				AssertNil(b.Result())

				if expected == 0 {
					continue
				}
				first := float64(skip)
				if sorted {
					first = float64(m - 1 - skip)
				}
				AssertEqual(b.Items[0]["n"], first)
			}
		}
	}
}

func TestCoordinator_Unlimited(t *testing.T) {

	b := New().Take(0).Skip(5)
	run(numbers(30), b)

	AssertEqual(len(b.Items), 25)
}

func TestCoordinator_UnsortedStopsEarly(t *testing.T) {

	b := New().Take(3)
	run(numbers(100), b)

	AssertEqual(b.Scanned, 3)
	AssertEqual(b.Count, 3)
	AssertEqual(len(b.Items), 3)
}

func TestCoordinator_SortedScansEverything(t *testing.T) {

	b := New().Take(3).Sort("n_desc")
	run(numbers(100), b)

	AssertEqual(b.Scanned, 100)
	AssertEqual(b.Count, 100)
	AssertEqual(b.Items[0]["n"], 99.0)
}

func TestCoordinator_FanInMatchesSequential(t *testing.T) {

	docs := numbers(200)

	newBuilders := func() []*Builder {
		return []*Builder{
			New().Filter(`{"parity":"even"}`, nil).Take(10),
			New().Filter(`{"parity":"odd"}`, nil).Sort("n_desc").Take(5).Skip(2),
			New().Scalar("sum:n", nil).Take(0),
			New().Fields("n").Skip(190),
		}
	}

	together := newBuilders()
	run(docs, together...)

	for i, alone := range newBuilders() {
		run(docs, alone)
		AssertEqual(together[i].Items, alone.Items)
		AssertEqual(together[i].Count, alone.Count)
		AssertEqual(together[i].Aggregate, alone.Aggregate)
	}

	AssertEqual(together[2].Aggregate, 19900.0)
	AssertEqual(together[1].Items[0]["n"], 195.0)
}

func TestCoordinator_CanceledBuilder(t *testing.T) {

	docs := numbers(20)
	a := New()
	b := New()
	b.Cancel()

	c := NewCoordinator(a, b)
	c.Compare(docs[:10])
	AssertEqual(c.Active(), 1)
	c.Compare(docs[10:])
	c.Done(nil, nil)

	AssertEqual(len(a.Items), 20)
	AssertEqual(len(b.Items), 0)
}

func TestCoordinator_ScalarRespectsSkipTake(t *testing.T) {

	b := New().Scalar("count", nil).Skip(5).Take(10)
	run(numbers(100), b)

	AssertEqual(b.Aggregate, 10)
	AssertEqual(len(b.Items), 0)
}

func TestCoordinator_First(t *testing.T) {

	b := New().Sort("n_desc").First()
	run(numbers(10), b)

	AssertEqual(b.Item(), Document{"n": 9.0, "parity": "odd"})
}

func TestCoordinator_DoneHook(t *testing.T) {

	b := New().Take(2)
	c := NewCoordinator(b)
	c.Compare(numbers(5))

	hooked := 0
	c.Done(nil, func(b *Builder) error {
		hooked++
		return nil
	})

	AssertEqual(hooked, 1)
	AssertNil(b.Result())
}

func TestCoordinator_Compare2(t *testing.T) {

	docs := numbers(10)
	update := New().Filter(`{"parity":"even"}`, nil).Modify(`{"$set":{"touched":true}}`, nil)
	remove := New().Take(2)

	flushed := []int{}
	c := NewCoordinator(update, remove)
	c.Compare2(docs, func(i int, doc Document, b *Builder) (bool, bool) {
		if b == remove {
			return true, true
		}
		b.Apply(doc)
		return true, false
	}, func(i int, doc Document) {
		flushed = append(flushed, i)
	})
	c.Done(nil, nil)

	AssertEqual(flushed, []int{0, 1, 2, 4, 6, 8})
	AssertEqual(len(update.Items), 5)
	AssertEqual(len(remove.Items), 2)
	AssertEqual(docs[4]["touched"], true)
	AssertEqual(docs[3]["touched"], nil)
}
