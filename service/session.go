package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/fulldump/textdb/worker"
)

var ErrWorkerStopped = errors.New("worker stopped")

// session keeps a worker serving: commands are sent through requests and
// routed back by id, statuses pushed every interval are kept and logged.
type session struct {
	worker   *worker.Worker
	logger   *slog.Logger
	requests chan *worker.Request
	cancel   context.CancelFunc
	done     chan struct{}

	mutex   sync.Mutex
	pending map[string]chan *worker.Response
	status  *worker.Status
}

func newSession(w *worker.Worker, logger *slog.Logger) *session {

	ctx, cancel := context.WithCancel(context.Background())

	s := &session{
		worker:   w,
		logger:   logger.With("collection", w.Collection.Name),
		requests: make(chan *worker.Request),
		cancel:   cancel,
		done:     make(chan struct{}),
		pending:  map[string]chan *worker.Response{},
	}

	responses := make(chan *worker.Response)
	statuses := make(chan *worker.Status)

	go func() {
		defer close(s.done)
		err := w.Serve(ctx, s.requests, responses, statuses)
		if err != nil {
			s.logger.Error("worker stopped", "err", err)
		}
	}()
	go s.route(ctx, responses, statuses)

	return s
}

func (s *session) route(ctx context.Context, responses <-chan *worker.Response, statuses <-chan *worker.Status) {
	for {
		select {
		case <-ctx.Done():
			return
		case resp := <-responses:
			s.mutex.Lock()
			reply, ok := s.pending[resp.ID]
			delete(s.pending, resp.ID)
			s.mutex.Unlock()
			if ok {
				reply <- resp
			}
		case status := <-statuses:
			s.mutex.Lock()
			s.status = status
			s.mutex.Unlock()
			s.logger.Debug("status",
				"pendingread", status.PendingRead,
				"pendingwrite", status.PendingWrite,
				"memory", status.Memory,
			)
		}
	}
}

// handle sends req to the worker and waits for its response. Requests are
// routed under an id of their own, the caller's id is put back on reply.
func (s *session) handle(ctx context.Context, req *worker.Request) (*worker.Response, error) {

	routed := *req
	routed.ID = uuid.NewString()

	reply := make(chan *worker.Response, 1)
	s.mutex.Lock()
	s.pending[routed.ID] = reply
	s.mutex.Unlock()

	select {
	case s.requests <- &routed:
	case <-ctx.Done():
		s.forget(routed.ID)
		return nil, ctx.Err()
	case <-s.done:
		s.forget(routed.ID)
		return nil, ErrWorkerStopped
	}

	select {
	case resp := <-reply:
		if req.ID != "" {
			resp.ID = req.ID
		}
		return resp, nil
	case <-ctx.Done():
		s.forget(routed.ID)
		return nil, ctx.Err()
	case <-s.done:
		s.forget(routed.ID)
		return nil, ErrWorkerStopped
	}
}

func (s *session) forget(id string) {
	s.mutex.Lock()
	delete(s.pending, id)
	s.mutex.Unlock()
}

// lastStatus is the latest pushed status, nil before the first push.
func (s *session) lastStatus() *worker.Status {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.status
}

func (s *session) stop() {
	s.cancel()
	<-s.done
}
