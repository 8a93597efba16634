package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/textdb/collection"
	"github.com/fulldump/textdb/database"
	"github.com/fulldump/textdb/query"
	"github.com/fulldump/textdb/service"
)

var (
	ErrBadRequest  = errors.New("bad request")
	ErrUnavailable = errors.New("temporary unavailable")
)

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p PrettyError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"error": struct {
			Message     string `json:"message"`
			Description string `json:"description"`
		}{
			p.Message,
			p.Description,
		},
	})
}

func (p PrettyError) MarshalTo(w io.Writer) error {
	return json.NewEncoder(w).Encode(p)
}

func InterceptorUnavailable(db *database.Database) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {

			status := db.GetStatus()
			if status == database.StatusOpening || status == database.StatusClosing {
				box.SetError(ctx, fmt.Errorf("%w: %s", ErrUnavailable, status))
				return
			}
			next(ctx)
		}
	}
}

// statusOf maps an error to the http status and a short description.
func statusOf(ctx context.Context, err error) (int, string) {

	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError

	switch {
	case errors.Is(err, box.ErrResourceNotFound):
		return http.StatusNotFound, fmt.Sprintf("resource '%s' not found", box.GetRequest(ctx).URL.String())
	case errors.Is(err, box.ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, fmt.Sprintf("method '%s' not allowed", box.GetRequest(ctx).Method)
	case errors.Is(err, database.ErrCollectionNotFound):
		return http.StatusNotFound, "collection not found"
	case errors.Is(err, database.ErrCollectionAlreadyExists):
		return http.StatusConflict, "collection already exists"
	case errors.Is(err, collection.ErrBusy):
		return http.StatusConflict, "collection is busy"
	case errors.Is(err, collection.ErrDropped):
		return http.StatusGone, "collection has been dropped"
	case errors.Is(err, ErrUnavailable), errors.Is(err, collection.ErrClosed),
		errors.Is(err, service.ErrWorkerStopped):
		return http.StatusServiceUnavailable, "database is not operating"
	case errors.As(err, &syntaxError), errors.As(err, &typeError):
		return http.StatusBadRequest, "Malformed JSON"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, query.ErrExpression),
		errors.Is(err, collection.ErrNotTable),
		errors.Is(err, collection.ErrNoSchema),
		errors.Is(err, collection.ErrPayload):
		return http.StatusBadRequest, "Invalid request"
	}

	return http.StatusInternalServerError, "Unexpected error"
}

func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)

		status, description := statusOf(ctx, err)
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message":     err.Error(),
				"description": description,
			},
		})
	}
}
