package api

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/fulldump/box"
	"github.com/klauspost/compress/gzip"
)

// CompressionMinSize is the smallest body worth compressing. Status
// replies and single item finds stay below it and are sent as they are.
const CompressionMinSize = 1024

var gzipWriters = sync.Pool{
	New: func() any {
		gz, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return gz
	},
}

// Compression gzips response bodies for clients accepting it. The body is
// held until CompressionMinSize bytes are written, bodies that already
// carry a Content-Encoding are left alone.
func Compression(next box.H) box.H {
	return func(ctx context.Context) {
		r := box.GetRequest(ctx)
		w := box.GetResponse(ctx)

		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next(ctx)
			return
		}

		w.Header().Add("Vary", "Accept-Encoding")
		cw := &compressWriter{ResponseWriter: w}
		box.GetBoxContext(ctx).Response = cw
		defer cw.close()
		next(ctx)
	}
}

type compressWriter struct {
	http.ResponseWriter
	status      int
	buffer      []byte
	gz          *gzip.Writer
	passthrough bool
}

// WriteHeader is delayed until the encoding is decided.
func (w *compressWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *compressWriter) Write(b []byte) (int, error) {
	switch {
	case w.gz != nil:
		return w.gz.Write(b)
	case w.passthrough:
		return w.ResponseWriter.Write(b)
	}

	w.buffer = append(w.buffer, b...)
	if len(w.buffer) < CompressionMinSize {
		return len(b), nil
	}
	if err := w.start(); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (w *compressWriter) start() error {

	buffered := w.buffer
	w.buffer = nil

	h := w.Header()
	if h.Get("Content-Encoding") != "" {
		w.passthrough = true
		w.writeHeader()
		_, err := w.ResponseWriter.Write(buffered)
		return err
	}

	h.Set("Content-Encoding", "gzip")
	h.Del("Content-Length")
	w.writeHeader()

	w.gz = gzipWriters.Get().(*gzip.Writer)
	w.gz.Reset(w.ResponseWriter)
	_, err := w.gz.Write(buffered)
	return err
}

func (w *compressWriter) writeHeader() {
	if w.status != 0 {
		w.ResponseWriter.WriteHeader(w.status)
	}
}

func (w *compressWriter) close() {
	if w.gz != nil {
		w.gz.Close()
		gzipWriters.Put(w.gz)
		w.gz = nil
		return
	}
	if w.passthrough {
		return
	}
	w.writeHeader()
	if len(w.buffer) > 0 {
		w.ResponseWriter.Write(w.buffer)
		w.buffer = nil
	}
}
