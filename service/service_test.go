package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	. "github.com/fulldump/biff"

	"github.com/fulldump/textdb/collection"
	"github.com/fulldump/textdb/database"
	"github.com/fulldump/textdb/query"
	"github.com/fulldump/textdb/worker"
)

func newService(t *testing.T, interval time.Duration) *Service {
	db := database.NewDatabase(&database.Config{Dir: t.TempDir()})
	AssertNil(db.Load())
	t.Cleanup(func() { db.Stop() })

	s := NewService(db, interval, slog.New(slog.DiscardHandler))
	t.Cleanup(s.Close)

	_, err := s.CreateCollection("people", collection.Document, "")
	AssertNil(err)
	return s
}

func TestCommand_RoutesConcurrentReplies(t *testing.T) {

	s := newService(t, time.Minute)
	ctx := context.Background()

	wg := sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("insert-%d", i)
			resp, err := s.Command(ctx, "people", &worker.Request{
				ID:   id,
				Kind: worker.KindInsert,
				Spec: &query.Spec{Payload: query.Document{"n": i}},
			})
			AssertNil(err)
			AssertEqual(resp.ID, id)
			AssertNil(resp.Err())
		}()
	}
	wg.Wait()

	resp, err := s.Command(ctx, "people", &worker.Request{Kind: worker.KindFind})
	AssertNil(err)
	AssertNotEqual(resp.ID, "")
	AssertEqual(len(resp.Items), 20)
}

func TestStatus_Pushed(t *testing.T) {

	s := newService(t, 10*time.Millisecond)
	ctx := context.Background()

	_, err := s.Command(ctx, "people", &worker.Request{Kind: worker.KindFind})
	AssertNil(err)

	session, err := s.session("people")
	AssertNil(err)

	deadline := time.Now().Add(2 * time.Second)
	for session.lastStatus() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	AssertNotNil(session.lastStatus())

	status, err := s.Status("people")
	AssertNil(err)
	AssertEqual(status.Kind, worker.KindStatus)
	AssertEqual(status.Collection, "people")
}

func TestDeleteCollection_StopsWorker(t *testing.T) {

	s := newService(t, time.Minute)
	ctx := context.Background()

	_, err := s.Command(ctx, "people", &worker.Request{Kind: worker.KindFind})
	AssertNil(err)
	session, err := s.session("people")
	AssertNil(err)

	AssertNil(s.DeleteCollection(ctx, "people"))

	_, err = session.handle(ctx, &worker.Request{Kind: worker.KindFind})
	AssertTrue(errors.Is(err, ErrWorkerStopped))

	_, err = s.Command(ctx, "people", &worker.Request{Kind: worker.KindFind})
	AssertTrue(errors.Is(err, database.ErrCollectionNotFound))
}
