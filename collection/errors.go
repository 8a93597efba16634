package collection

import (
	"errors"
)

var (
	ErrDropped  = errors.New("collection dropped")
	ErrBusy     = errors.New("collection busy")
	ErrClosed   = errors.New("collection closed")
	ErrNotTable = errors.New("collection is not a table")
	ErrNoSchema = errors.New("table has no schema")
	ErrPayload  = errors.New("insert without payload")
)
