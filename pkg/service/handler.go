package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Handler adapts an http.Handler, e.g. a chi router, into a Service.
//
// The handler runs on its own goroutine and its output is streamed: the head
// is committed on the first WriteHeader, Write or Flush (or when the handler
// returns), and every non-empty Write becomes exactly one body chunk. Write
// blocks until the chunk has been taken by the reader, so at most one chunk
// is in flight. A panic before the head is committed fails the call; after
// that it faults the body.
func Handler(h http.Handler) Service { return handlerService{h: h} }

type handlerService struct{ h http.Handler }

func (handlerService) Ready(context.Context) error { return nil }

func (s handlerService) Call(ctx context.Context, req *http.Request) (*Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	w := &streamWriter{
		ctx:    ctx,
		header: http.Header{},
		head:   make(chan head, 1),
		chunks: make(chan []byte),
	}

	go w.serve(s.h, req.WithContext(ctx))

	select {
	case hd := <-w.head:
		if hd.err != nil {
			cancel()
			return nil, hd.err
		}
		return &Response{
			StatusCode: hd.status,
			Header:     hd.header,
			Body:       &handlerBody{w: w, cancel: cancel},
		}, nil
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

type head struct {
	status int
	header http.Header
	err    error
}

// streamWriter is the http.ResponseWriter handed to the handler. Every field
// but the channels and final is owned by the handler goroutine.
type streamWriter struct {
	ctx    context.Context
	header http.Header

	committed bool
	head      chan head
	chunks    chan []byte

	// final is written before chunks is closed.
	final error
}

func (w *streamWriter) serve(h http.Handler, r *http.Request) {
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("service: handler panic: %v", p)
			if !w.committed {
				w.committed = true
				w.head <- head{err: err}
			}
			w.final = err
		}
		w.commit(http.StatusOK)
		close(w.chunks)
	}()
	h.ServeHTTP(w, r)
}

func (w *streamWriter) Header() http.Header { return w.header }

func (w *streamWriter) WriteHeader(code int) {
	if code < 100 || code > 599 {
		panic(fmt.Sprintf("invalid WriteHeader code %v", code))
	}
	// informational heads are not forwarded
	if code >= 100 && code <= 199 && code != http.StatusSwitchingProtocols {
		return
	}
	w.commit(code)
}

func (w *streamWriter) commit(code int) {
	if w.committed {
		return
	}
	w.committed = true
	w.head <- head{status: code, header: w.header.Clone()}
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.commit(http.StatusOK)
	if len(p) == 0 {
		return 0, nil
	}
	select {
	case w.chunks <- bytes.Clone(p):
		return len(p), nil
	case <-w.ctx.Done():
		return 0, w.ctx.Err()
	}
}

func (w *streamWriter) Flush() { w.commit(http.StatusOK) }

// handlerBody reads chunks as the handler writes them.
type handlerBody struct {
	w      *streamWriter
	cancel context.CancelFunc
	once   sync.Once
}

func (b *handlerBody) Next(ctx context.Context) ([]byte, error) {
	select {
	case c, ok := <-b.w.chunks:
		if ok {
			return c, nil
		}
		b.Close()
		if b.w.final != nil {
			return nil, b.w.final
		}
		return nil, io.EOF
	case <-ctx.Done():
		b.Close()
		return nil, ctx.Err()
	}
}

// Close stops the handler from writing further chunks.
func (b *handlerBody) Close() error {
	b.once.Do(b.cancel)
	return nil
}

var (
	_ http.ResponseWriter = (*streamWriter)(nil)
	_ http.Flusher        = (*streamWriter)(nil)
)
