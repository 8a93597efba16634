package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fulldump/textdb/collection"
	"github.com/fulldump/textdb/utils"
)

const (
	StatusOpening   = "opening"
	StatusOperating = "operating"
	StatusClosing   = "closing"
)

var (
	ErrCollectionNotFound      = errors.New("collection not found")
	ErrCollectionAlreadyExists = errors.New("collection already exists")
)

type Config struct {
	Dir     string
	Options collection.Options
	Logger  *slog.Logger
}

type Database struct {
	config      *Config
	logger      *slog.Logger
	status      string
	collections map[string]*collection.Collection
	mutex       sync.RWMutex
	exit        chan struct{}
}

func NewDatabase(config *Config) *Database {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Options.Logger == nil {
		config.Options.Logger = logger
	}
	return &Database{
		config:      config,
		logger:      logger,
		status:      StatusOpening,
		collections: map[string]*collection.Collection{},
		exit:        make(chan struct{}),
	}
}

func (db *Database) GetStatus() string {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.status
}

func (db *Database) setStatus(status string) {
	db.mutex.Lock()
	db.status = status
	db.mutex.Unlock()
}

func (db *Database) CreateCollection(name string, kind collection.Kind, definition string) (*collection.Collection, error) {

	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid collection name '%s'", name)
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	if _, exists := db.collections[name]; exists {
		return nil, fmt.Errorf("%w: '%s'", ErrCollectionAlreadyExists, name)
	}

	col, err := collection.Create(db.config.Dir, name, kind, definition, db.config.Options)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("%w: '%s'", ErrCollectionAlreadyExists, name)
	}
	if err != nil {
		return nil, err
	}

	db.collections[name] = col
	db.logger.Info("collection created", "name", name, "kind", kind)

	return col, nil
}

func (db *Database) GetCollection(name string) (*collection.Collection, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	col, exists := db.collections[name]
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrCollectionNotFound, name)
	}
	return col, nil
}

// ListCollections returns the collections sorted by name.
func (db *Database) ListCollections() []*collection.Collection {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	result := make([]*collection.Collection, 0, len(db.collections))
	for _, name := range utils.GetKeys(db.collections) {
		result = append(result, db.collections[name])
	}
	return result
}

// DropCollection drops the collection files through its scheduler and
// forgets it.
func (db *Database) DropCollection(ctx context.Context, name string) error {

	db.mutex.Lock()
	col, exists := db.collections[name]
	if exists {
		delete(db.collections, name)
	}
	db.mutex.Unlock()

	if !exists {
		return fmt.Errorf("%w: '%s'", ErrCollectionNotFound, name)
	}

	if err := col.Drop(ctx); err != nil {
		return err
	}
	return col.Close()
}

// Load opens every collection file found in the directory, in parallel.
func (db *Database) Load() error {

	dir := db.config.Dir
	db.logger.Info("loading database", "dir", dir)

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		db.setStatus(StatusClosing)
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		db.setStatus(StatusClosing)
		return err
	}

	g := errgroup.Group{}
	g.SetLimit(8)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filename := filepath.Join(dir, entry.Name())
		name, _, ok := collection.ParseFilename(filename)
		if !ok {
			continue
		}

		g.Go(func() error {
			t0 := time.Now()
			col, err := collection.Open(filename, db.config.Options)
			if err != nil {
				db.logger.Error("open collection", "name", name, "err", err)
				return err
			}

			db.mutex.Lock()
			db.collections[name] = col
			db.mutex.Unlock()

			db.logger.Info("collection loaded", "name", name, "kind", col.Kind, "took", time.Since(t0))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		db.setStatus(StatusClosing)
		return err
	}

	db.setStatus(StatusOperating)
	return nil
}

func (db *Database) Start() error {

	if err := db.Load(); err != nil {
		return err
	}

	<-db.exit

	return nil
}

func (db *Database) Stop() error {

	defer close(db.exit)

	db.setStatus(StatusClosing)

	db.mutex.Lock()
	defer db.mutex.Unlock()

	var lastErr error
	for name, col := range db.collections {
		db.logger.Info("closing collection", "name", name)
		err := col.Close()
		if err != nil {
			db.logger.Error("close collection", "name", name, "err", err)
			lastErr = err
		}
	}

	return lastErr
}
