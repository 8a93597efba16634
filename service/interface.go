package service

import (
	"context"

	"github.com/fulldump/textdb/collection"
	"github.com/fulldump/textdb/journal"
	"github.com/fulldump/textdb/worker"
)

type Servicer interface {
	CreateCollection(name string, kind collection.Kind, definition string) (*collection.Collection, error)
	GetCollection(name string) (*collection.Collection, error)
	ListCollections() []*collection.Collection
	DeleteCollection(ctx context.Context, name string) error
	Command(ctx context.Context, name string, req *worker.Request) (*worker.Response, error)
	Backups(name string) ([]*journal.Entry, error)
	Status(name string) (*worker.Status, error)
}
