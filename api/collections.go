package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/textdb/collection"
	"github.com/fulldump/textdb/journal"
	"github.com/fulldump/textdb/schema"
	"github.com/fulldump/textdb/worker"
)

type createCollectionRequest struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Schema string `json:"schema"`
}

func listCollections(ctx context.Context) ([]*collection.Stats, error) {

	s := getServicer(ctx)

	result := []*collection.Stats{}
	for _, c := range s.ListCollections() {
		stats, err := c.Stats()
		if err != nil {
			continue // dropped or closed meanwhile
		}
		result = append(result, stats)
	}

	return result, nil
}

func createCollection(ctx context.Context, w http.ResponseWriter, input *createCollectionRequest) (*collection.Stats, error) {

	kind, err := collection.ParseKind(input.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if kind == collection.Table {
		if _, err := schema.Parse(input.Schema); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
	}

	s := getServicer(ctx)
	c, err := s.CreateCollection(input.Name, kind, input.Schema)
	if err != nil {
		return nil, err
	}

	stats, err := c.Stats()
	if err != nil {
		return nil, err
	}

	w.WriteHeader(http.StatusCreated)
	return stats, nil
}

func getCollection(ctx context.Context) (*collection.Stats, error) {

	s := getServicer(ctx)

	c, err := s.GetCollection(box.GetUrlParameter(ctx, "collectionName"))
	if err != nil {
		return nil, err
	}

	return c.Stats()
}

// command runs a worker request. The response is always returned, failed
// requests also carry a status code.
func command(ctx context.Context, w http.ResponseWriter, input *worker.Request) (*worker.Response, error) {

	s := getServicer(ctx)

	resp, err := s.Command(ctx, box.GetUrlParameter(ctx, "collectionName"), input)
	if err != nil {
		return nil, err
	}

	if err := resp.Err(); err != nil {
		status, _ := statusOf(ctx, err)
		w.WriteHeader(status)
	}

	return resp, nil
}

// dropCollection answers 204, there is nothing left to return.
func dropCollection(ctx context.Context) error {

	s := getServicer(ctx)

	return s.DeleteCollection(ctx, box.GetUrlParameter(ctx, "collectionName"))
}

func backups(ctx context.Context) ([]*journal.Entry, error) {

	s := getServicer(ctx)

	return s.Backups(box.GetUrlParameter(ctx, "collectionName"))
}

func status(ctx context.Context) (*worker.Status, error) {

	s := getServicer(ctx)

	return s.Status(box.GetUrlParameter(ctx, "collectionName"))
}
