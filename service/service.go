package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fulldump/textdb/collection"
	"github.com/fulldump/textdb/database"
	"github.com/fulldump/textdb/journal"
	"github.com/fulldump/textdb/worker"
)

// Service exposes the database to the api. Commands reach each collection
// through a serving worker, started on first use.
type Service struct {
	db       *database.Database
	interval time.Duration
	logger   *slog.Logger

	sessions map[string]*session
	mutex    sync.Mutex
}

func NewService(db *database.Database, interval time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		interval: interval,
		logger:   logger,
		sessions: map[string]*session{},
	}
}

func (s *Service) CreateCollection(name string, kind collection.Kind, definition string) (*collection.Collection, error) {
	return s.db.CreateCollection(name, kind, definition)
}

func (s *Service) GetCollection(name string) (*collection.Collection, error) {
	return s.db.GetCollection(name)
}

func (s *Service) ListCollections() []*collection.Collection {
	return s.db.ListCollections()
}

func (s *Service) DeleteCollection(ctx context.Context, name string) error {
	s.mutex.Lock()
	old := s.sessions[name]
	delete(s.sessions, name)
	s.mutex.Unlock()

	if old != nil {
		old.stop()
	}

	return s.db.DropCollection(ctx, name)
}

// Command runs one worker request against the named collection. Request
// failures travel inside the response; the error is only for a missing
// collection.
func (s *Service) Command(ctx context.Context, name string, req *worker.Request) (*worker.Response, error) {
	session, err := s.session(name)
	if err != nil {
		return nil, err
	}
	return session.handle(ctx, req)
}

// Status returns the last status pushed by the worker of the collection,
// or a fresh one when the first interval is not over yet.
func (s *Service) Status(name string) (*worker.Status, error) {
	session, err := s.session(name)
	if err != nil {
		return nil, err
	}
	if status := session.lastStatus(); status != nil {
		return status, nil
	}
	return session.worker.Status()
}

// Close stops every serving worker.
func (s *Service) Close() {
	s.mutex.Lock()
	sessions := s.sessions
	s.sessions = map[string]*session{}
	s.mutex.Unlock()

	for _, session := range sessions {
		session.stop()
	}
}

func (s *Service) Backups(name string) ([]*journal.Entry, error) {
	c, err := s.db.GetCollection(name)
	if err != nil {
		return nil, err
	}
	return c.Backups(nil)
}

func (s *Service) session(name string) (*session, error) {
	c, err := s.db.GetCollection(name)
	if err != nil {
		return nil, err
	}

	s.mutex.Lock()
	current, exists := s.sessions[name]
	var old *session
	if !exists || current.worker.Collection != c {
		old = current
		current = newSession(worker.New(c, s.interval, s.logger), s.logger)
		s.sessions[name] = current
	}
	s.mutex.Unlock()

	if old != nil {
		old.stop()
	}
	return current, nil
}
