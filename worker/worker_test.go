package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/fulldump/biff"

	"github.com/fulldump/textdb/collection"
	"github.com/fulldump/textdb/query"
)

func newWorker(t *testing.T) *Worker {
	c, err := collection.Open(filepath.Join(t.TempDir(), "people.ndb"), collection.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		c.Close()
	})
	return New(c, 10*time.Millisecond, nil)
}

func TestHandle(t *testing.T) {

	ctx := context.Background()
	w := newWorker(t)

	for _, name := range []string{"Fulanez", "Menganez", "Zutanez"} {
		resp := w.Handle(ctx, &Request{Kind: KindInsert, Spec: &query.Spec{Payload: query.Document{"name": name}}})
		AssertNil(resp.Err())
		AssertEqual(resp.Kind, KindReply)
	}

	take := 2
	resp := w.Handle(ctx, &Request{ID: "my-id", Kind: KindFind2, Spec: &query.Spec{Take: &take}})
	AssertNil(resp.Err())
	AssertEqual(resp.ID, "my-id")
	AssertEqual(resp.Items, []query.Document{{"name": "Zutanez"}, {"name": "Menganez"}})

	resp = w.Handle(ctx, &Request{Kind: KindUpdate, Spec: &query.Spec{
		Filter:    `{"name":"$arg"}`,
		FilterArg: "Fulanez",
		Modify:    `{"$set":{"age":33}}`,
	}})
	AssertNil(resp.Err())
	AssertEqual(resp.Counter, 1)

	resp = w.Handle(ctx, &Request{Kind: KindRemove, Spec: &query.Spec{Filter: `{"name":"Zutanez"}`}})
	AssertNil(resp.Err())
	AssertEqual(resp.Counter, 1)

	resp = w.Handle(ctx, &Request{Kind: KindFind, Spec: &query.Spec{Scalar: "count"}})
	AssertNil(resp.Err())
	AssertEqual(resp.Scalar, 2)

	resp = w.Handle(ctx, &Request{Kind: KindFind, Spec: &query.Spec{Filter: `{"name":"Fulanez"}`}})
	AssertEqual(resp.Items, []query.Document{{"name": "Fulanez", "age": 33.0}})
}

func TestHandle_Errors(t *testing.T) {

	ctx := context.Background()
	w := newWorker(t)

	resp := w.Handle(ctx, &Request{Kind: "explode"})
	AssertTrue(errors.Is(resp.Err(), ErrUnknownKind))
	AssertEqual(resp.Error, "unknown request kind 'explode'")

	resp = w.Handle(ctx, &Request{Kind: KindInsert})
	AssertTrue(errors.Is(resp.Err(), collection.ErrPayload))

	resp = w.Handle(ctx, &Request{Kind: KindAlter, Schema: "id:string"})
	AssertTrue(errors.Is(resp.Err(), collection.ErrNotTable))

	resp = w.Handle(ctx, &Request{Kind: KindFind, Spec: &query.Spec{Filter: `{broken`}})
	AssertTrue(errors.Is(resp.Err(), query.ErrExpression))
}

func TestServe(t *testing.T) {

	w := newWorker(t)

	requests := make(chan *Request)
	responses := make(chan *Response, 10)
	statuses := make(chan *Status, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error)
	go func() {
		served <- w.Serve(ctx, requests, responses, statuses)
	}()

	requests <- &Request{ID: "1", Kind: KindInsert, Spec: &query.Spec{Payload: query.Document{"n": 1}}}
	AssertEqual((<-responses).ID, "1")

	requests <- &Request{ID: "2", Kind: KindFind}
	resp := <-responses
	AssertEqual(resp.ID, "2")
	AssertEqual(len(resp.Items), 1)

	status := <-statuses
	AssertEqual(status.Kind, KindStatus)
	AssertEqual(status.Collection, "people")
	AssertTrue(status.Memory > 0)

	close(requests)
	AssertNil(<-served)
}
