// Package worker speaks the command protocol of a collection: requests
// carrying a builder spec go in, responses with the builder results come
// out, and a status message is pushed periodically.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fulldump/textdb/collection"
	"github.com/fulldump/textdb/query"
)

const (
	KindFind   = "find"
	KindFind2  = "find2"
	KindInsert = "insert"
	KindUpdate = "update"
	KindRemove = "remove"
	KindAlter  = "alter"
	KindClean  = "clean"
	KindClear  = "clear"
	KindDrop   = "drop"
	KindStatus = "status"
	KindReply  = "response"
)

const DefaultStatusInterval = 5 * time.Second

var ErrUnknownKind = errors.New("unknown request kind")

type Request struct {
	ID     string      `json:"id,omitempty"`
	Kind   string      `json:"kind"`
	Spec   *query.Spec `json:"spec,omitempty"`
	Schema string      `json:"schema,omitempty"`
}

type Response struct {
	ID       string           `json:"id"`
	Kind     string           `json:"kind"`
	Items    []query.Document `json:"items,omitempty"`
	Count    int              `json:"count"`
	Counter  int              `json:"counter"`
	Scanned  int              `json:"scanned"`
	Scalar   any              `json:"scalar,omitempty"`
	Duration time.Duration    `json:"duration"`
	Error    string           `json:"error,omitempty"`

	err error
}

// Err returns the error of the request, nil on success.
func (r *Response) Err() error {
	return r.err
}

type Status struct {
	Kind         string          `json:"kind"`
	Collection   string          `json:"collection"`
	PendingRead  int             `json:"pendingread"`
	PendingWrite int             `json:"pendingwrite"`
	Memory       uint64          `json:"memory"`
	Duration     []time.Duration `json:"duration"`
}

type Worker struct {
	Collection *collection.Collection
	Interval   time.Duration
	logger     *slog.Logger
}

func New(c *collection.Collection, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		Collection: c,
		Interval:   interval,
		logger:     logger.With("worker", c.Name),
	}
}

// Handle runs one request and waits for its response.
func (w *Worker) Handle(ctx context.Context, req *Request) *Response {

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	resp := &Response{ID: id, Kind: KindReply}
	started := time.Now()

	err := w.handle(ctx, req, resp)
	if resp.Duration == 0 {
		resp.Duration = time.Since(started)
	}
	if err != nil {
		resp.err = err
		resp.Error = err.Error()
		w.logger.Debug("request failed", "id", id, "kind", req.Kind, "err", err)
	}
	return resp
}

func (w *Worker) handle(ctx context.Context, req *Request, resp *Response) error {

	c := w.Collection

	var b *query.Builder
	switch req.Kind {
	case KindFind:
		b = c.Find()
	case KindFind2:
		b = c.Find2()
	case KindInsert:
		if req.Spec == nil || req.Spec.Payload == nil {
			return collection.ErrPayload
		}
		b = c.Insert(req.Spec.Payload)
	case KindUpdate:
		b = c.Update()
	case KindRemove:
		b = c.Remove()
	case KindAlter:
		return c.Alter(ctx, req.Schema)
	case KindClean:
		return c.Clean(ctx)
	case KindClear:
		return c.Clear(ctx)
	case KindDrop:
		return c.Drop(ctx)
	default:
		return fmt.Errorf("%w '%s'", ErrUnknownKind, req.Kind)
	}

	b.Assign(req.Spec)
	err := b.Do(ctx)

	resp.Items = b.Items
	resp.Count = b.Count
	resp.Counter = b.Counter
	resp.Scanned = b.Scanned
	resp.Scalar = b.Aggregate
	resp.Duration = b.Duration
	return err
}

// Status reads the scheduler and the process memory.
func (w *Worker) Status() (*Status, error) {
	stats, err := w.Collection.Stats()
	if err != nil {
		return nil, err
	}
	mem := runtime.MemStats{}
	runtime.ReadMemStats(&mem)
	return &Status{
		Kind:         KindStatus,
		Collection:   w.Collection.Name,
		PendingRead:  stats.PendingReads(),
		PendingWrite: stats.PendingWrites(),
		Memory:       mem.Alloc,
		Duration:     stats.Durations,
	}, nil
}

// Serve handles requests concurrently until ctx is done or requests is
// closed, and pushes a status every Interval. Responses and statuses are
// never sent after Serve returns.
func (w *Worker) Serve(ctx context.Context, requests <-chan *Request, responses chan<- *Response, statuses chan<- *Status) error {

	g, ctx := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	g.Go(func() error {
		defer close(stop)
		handlers, hctx := errgroup.WithContext(ctx)
		for {
			select {
			case <-ctx.Done():
				handlers.Wait()
				return nil
			case req, ok := <-requests:
				if !ok {
					return handlers.Wait()
				}
				handlers.Go(func() error {
					resp := w.Handle(hctx, req)
					select {
					case responses <- resp:
					case <-hctx.Done():
					}
					return nil
				})
			}
		}
	})

	g.Go(func() error {
		if statuses == nil {
			return nil
		}
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return nil
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				status, err := w.Status()
				if err != nil {
					w.logger.Warn("status", "err", err)
					continue
				}
				select {
				case statuses <- status:
				case <-stop:
					return nil
				case <-ctx.Done():
					return nil
				}
			}
		}
	})

	return g.Wait()
}
