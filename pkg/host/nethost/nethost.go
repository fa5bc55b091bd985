// Package nethost runs a worker behind a net/http server: incoming requests
// become host requests and host responses are written back chunk by chunk.
package nethost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"slices"
	"strings"

	"github.com/joeydtaylor/steeze-worker/pkg/host"
	"golang.org/x/net/http/httpguts"
)

// ErrBodyTooLarge is returned when a request body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("nethost: request body too large")

// ---------- request ----------

// Request exposes an *http.Request as a host request.
type Request struct {
	r       *http.Request
	w       http.ResponseWriter
	maxBody int64
}

// NewRequest wraps r. maxBody <= 0 means no limit.
func NewRequest(w http.ResponseWriter, r *http.Request, maxBody int64) *Request {
	return &Request{r: r, w: w, maxBody: maxBody}
}

func (q *Request) Method() string { return q.r.Method }

// URL is the absolute request URL.
func (q *Request) URL() string {
	scheme := "http"
	if q.r.TLS != nil {
		scheme = "https"
	}
	if p := q.r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + q.r.Host + q.r.URL.RequestURI()
}

func (q *Request) Headers() host.Headers {
	h := q.r.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if q.r.Host != "" && h.Get("Host") == "" {
		h.Set("Host", q.r.Host)
	}
	return &Headers{h: h}
}

func (q *Request) ArrayBuffer(ctx context.Context) (host.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.r.Body == nil {
		return Buffer{}, nil
	}
	var rd io.Reader = q.r.Body
	if q.maxBody > 0 {
		rd = http.MaxBytesReader(q.w, q.r.Body, q.maxBody)
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, tooLarge.Limit)
		}
		return nil, err
	}
	return Buffer(b), nil
}

// ---------- headers ----------

// Headers presents an http.Header the way a fetch Headers object does:
// lowercase names in sorted order, one entry per value.
type Headers struct{ h http.Header }

func (hs *Headers) Entries() (iter.Seq[host.Entry], error) {
	names := make([]string, 0, len(hs.h))
	for k := range hs.h {
		names = append(names, k)
	}
	slices.SortFunc(names, func(a, b string) int { return strings.Compare(strings.ToLower(a), strings.ToLower(b)) })
	return func(yield func(host.Entry) bool) {
		for _, k := range names {
			for _, v := range hs.h[k] {
				if !yield(host.Entry{Key: host.Str(strings.ToLower(k)), Value: host.Str(v)}) {
					return
				}
			}
		}
	}, nil
}

func (hs *Headers) Append(name, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("nethost: invalid header name %q", name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("nethost: invalid header value for %q", name)
	}
	hs.h.Add(name, value)
	return nil
}

// ---------- buffers, streams, responses ----------

// Buffer is a host binary array.
type Buffer []byte

func (b Buffer) Len() int                { return len(b) }
func (b Buffer) CopyTo(dst []byte) int   { return copy(dst, b) }
func (b Buffer) CopyFrom(src []byte) int { return copy(b, src) }

// Stream is pulled while the response is written.
type Stream struct{ src host.StreamSource }

// Response is what the worker hands back to the server.
type Response struct {
	Status int
	Header http.Header
	Stream *Stream
	Binary Buffer
}

// Runtime builds nethost values.
type Runtime struct{}

func (Runtime) NewHeaders() (host.Headers, error) { return &Headers{h: http.Header{}}, nil }

func (Runtime) NewBuffer(n int) host.Buffer { return make(Buffer, n) }

func (Runtime) NewReadableStream(src host.StreamSource) (host.ReadableStream, error) {
	if src == nil {
		return nil, errors.New("nethost: nil stream source")
	}
	return &Stream{src: src}, nil
}

func (Runtime) NewResponse(body host.BodyInit, init host.ResponseInit) (host.Response, error) {
	res := &Response{Status: init.Status, Header: http.Header{}}
	if init.Headers != nil {
		hs, ok := init.Headers.(*Headers)
		if !ok {
			return nil, fmt.Errorf("nethost: foreign headers %T", init.Headers)
		}
		res.Header = hs.h
	}
	if body.Stream != nil {
		s, ok := body.Stream.(*Stream)
		if !ok {
			return nil, fmt.Errorf("nethost: foreign stream %T", body.Stream)
		}
		res.Stream = s
	} else if body.Binary != nil {
		b, ok := body.Binary.(Buffer)
		if !ok {
			return nil, fmt.Errorf("nethost: foreign buffer %T", body.Binary)
		}
		res.Binary = b
	}
	return res, nil
}

var _ host.Runtime = Runtime{}

// WriteResponse commits the head and copies the body, flushing after every
// chunk. A stream error is returned after the partial body was written; the
// caller should abort the connection so the client sees a truncated body.
func WriteResponse(ctx context.Context, w http.ResponseWriter, hr host.Response) error {
	res, ok := hr.(*Response)
	if !ok || res == nil {
		return fmt.Errorf("nethost: foreign response %T", hr)
	}
	for k, vs := range res.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(res.Status)

	if res.Binary != nil {
		_, err := w.Write(res.Binary)
		return err
	}
	if res.Stream == nil {
		return nil
	}

	rc := http.NewResponseController(w)
	for {
		buf, err := res.Stream.src.Pull(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		chunk := make([]byte, buf.Len())
		buf.CopyTo(chunk)
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
}
