// Package memhost is an in-memory host runtime. It records everything the
// adapter does to host values so tests can assert on it.
package memhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/joeydtaylor/steeze-worker/pkg/host"
	"golang.org/x/net/http/httpguts"
)

// ---------- buffers ----------

// Buffer is a host binary array backed by a Go slice.
type Buffer struct{ b []byte }

// NewBuffer returns a zeroed buffer of length n.
func NewBuffer(n int) *Buffer { return &Buffer{b: make([]byte, n)} }

// BufferOf returns a buffer holding a copy of b.
func BufferOf(b []byte) *Buffer { return &Buffer{b: append([]byte(nil), b...)} }

func (b *Buffer) Len() int                { return len(b.b) }
func (b *Buffer) CopyTo(dst []byte) int   { return copy(dst, b.b) }
func (b *Buffer) CopyFrom(src []byte) int { return copy(b.b, src) }

// Bytes returns the backing slice.
func (b *Buffer) Bytes() []byte { return b.b }

// ---------- headers ----------

// Headers is an ordered header collection. Append rejects what a browser-style
// Headers object would reject.
type Headers struct {
	entries []host.Entry

	// EntriesErr makes Entries fail, as a host without an entries view would.
	EntriesErr error
}

// NewHeaders returns a collection holding the given name/value pairs in order.
func NewHeaders(pairs ...[2]string) *Headers {
	h := &Headers{}
	for _, p := range pairs {
		h.entries = append(h.entries, host.Entry{Key: host.Str(p[0]), Value: host.Str(p[1])})
	}
	return h
}

func (h *Headers) Append(name, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("memhost: invalid header name %q", name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("memhost: invalid header value for %q", name)
	}
	h.entries = append(h.entries, host.Entry{Key: host.Str(name), Value: host.Str(value)})
	return nil
}

// AddRaw appends an entry without validation; either slot may be nil or
// host.Undefined.
func (h *Headers) AddRaw(key, value host.Value) {
	h.entries = append(h.entries, host.Entry{Key: key, Value: value})
}

func (h *Headers) Entries() (iter.Seq[host.Entry], error) {
	if h.EntriesErr != nil {
		return nil, h.EntriesErr
	}
	snapshot := append([]host.Entry(nil), h.entries...)
	return func(yield func(host.Entry) bool) {
		for _, e := range snapshot {
			if !yield(e) {
				return
			}
		}
	}, nil
}

// Pairs returns the textual entries in insertion order.
func (h *Headers) Pairs() [][2]string {
	out := make([][2]string, 0, len(h.entries))
	for _, e := range h.entries {
		k, _ := asString(e.Key)
		v, _ := asString(e.Value)
		out = append(out, [2]string{k, v})
	}
	return out
}

func asString(v host.Value) (string, bool) {
	if v == nil {
		return "", false
	}
	return v.AsString()
}

// ---------- request ----------

// Request is a host request with a body that is read in one shot.
type Request struct {
	method  string
	url     string
	headers *Headers
	body    []byte

	// BodyErr makes ArrayBuffer reject.
	BodyErr error
}

// NewRequest builds a request; headers may be nil.
func NewRequest(method, url string, headers *Headers, body []byte) *Request {
	if headers == nil {
		headers = &Headers{}
	}
	return &Request{method: method, url: url, headers: headers, body: body}
}

func (r *Request) Method() string        { return r.method }
func (r *Request) URL() string           { return r.url }
func (r *Request) Headers() host.Headers { return r.headers }

func (r *Request) ArrayBuffer(ctx context.Context) (host.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.BodyErr != nil {
		return nil, r.BodyErr
	}
	return BufferOf(r.body), nil
}

// ---------- streams ----------

// EventKind is what the host stream observed.
type EventKind int

const (
	EventPush EventKind = iota
	EventClose
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPush:
		return "push"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one observation of the host stream.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

// ErrDrained is returned when a stream is read twice.
var ErrDrained = errors.New("memhost: stream already drained")

// Stream is a pull-based readable stream.
type Stream struct {
	mu      sync.Mutex
	src     host.StreamSource
	drained bool
}

// Drain pulls the source to completion and returns the observed events.
func (s *Stream) Drain(ctx context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained {
		return nil, ErrDrained
	}
	s.drained = true

	var events []Event
	for {
		buf, err := s.src.Pull(ctx)
		if errors.Is(err, io.EOF) {
			return append(events, Event{Kind: EventClose}), nil
		}
		if err != nil {
			return append(events, Event{Kind: EventError, Err: err}), nil
		}
		data := make([]byte, buf.Len())
		buf.CopyTo(data)
		events = append(events, Event{Kind: EventPush, Data: data})
	}
}

// ---------- responses ----------

// Response is a host response as assembled by the adapter.
type Response struct {
	Status  int
	Headers *Headers
	Stream  *Stream
	Binary  *Buffer
}

// Text drains the body into a string; a stream error is returned as is.
func (r *Response) Text(ctx context.Context) (string, error) {
	switch {
	case r.Binary != nil:
		return string(r.Binary.Bytes()), nil
	case r.Stream == nil:
		return "", nil
	}
	events, err := r.Stream.Drain(ctx)
	if err != nil {
		return "", err
	}
	var out []byte
	for _, ev := range events {
		switch ev.Kind {
		case EventPush:
			out = append(out, ev.Data...)
		case EventError:
			return string(out), ev.Err
		}
	}
	return string(out), nil
}

// ---------- runtime ----------

// Runtime builds memhost values. The Fail* fields make the matching
// constructor reject.
type Runtime struct {
	FailHeaders  error
	FailStream   error
	FailResponse error
}

// New returns a runtime that accepts everything.
func New() *Runtime { return &Runtime{} }

func (rt *Runtime) NewHeaders() (host.Headers, error) {
	if rt.FailHeaders != nil {
		return nil, rt.FailHeaders
	}
	return &Headers{}, nil
}

func (rt *Runtime) NewBuffer(n int) host.Buffer { return NewBuffer(n) }

func (rt *Runtime) NewReadableStream(src host.StreamSource) (host.ReadableStream, error) {
	if rt.FailStream != nil {
		return nil, rt.FailStream
	}
	return &Stream{src: src}, nil
}

func (rt *Runtime) NewResponse(body host.BodyInit, init host.ResponseInit) (host.Response, error) {
	if rt.FailResponse != nil {
		return nil, rt.FailResponse
	}
	res := &Response{Status: init.Status}
	if init.Headers != nil {
		h, ok := init.Headers.(*Headers)
		if !ok {
			return nil, fmt.Errorf("memhost: foreign headers %T", init.Headers)
		}
		res.Headers = h
	} else {
		res.Headers = &Headers{}
	}
	switch {
	case body.Stream != nil:
		s, ok := body.Stream.(*Stream)
		if !ok {
			return nil, fmt.Errorf("memhost: foreign stream %T", body.Stream)
		}
		res.Stream = s
	case body.Binary != nil:
		b, ok := body.Binary.(*Buffer)
		if !ok {
			return nil, fmt.Errorf("memhost: foreign buffer %T", body.Binary)
		}
		res.Binary = b
	}
	return res, nil
}

var _ host.Runtime = (*Runtime)(nil)
