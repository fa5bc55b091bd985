package conversion

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"sync/atomic"

	"github.com/joeydtaylor/steeze-worker/pkg/body"
	"github.com/joeydtaylor/steeze-worker/pkg/host"
	"github.com/joeydtaylor/steeze-worker/pkg/service"
)

// ErrConcurrentPull is returned when the host pulls while a pull is running.
var ErrConcurrentPull = errors.New("conversion: concurrent pull on response body")

// ConvertResponse commits the response head into host values and backs the
// host response with a stream pulled from res.Body.
//
// Header values that cannot be represented as host text are an error; unlike
// ingress, nothing is dropped silently on the way out. A fault from the body
// after this returns errors the host stream; the head is already committed.
func ConvertResponse(ctx context.Context, rt host.Runtime, res *service.Response) (host.Response, error) {
	if res == nil {
		return nil, &Error{Kind: KindHost, Op: "convert response", Cause: service.ErrNilResponse}
	}
	b := res.Body
	if b == nil {
		b = body.Empty()
	}

	init, err := responseInit(rt, res)
	if err != nil {
		_ = body.Close(b)
		return nil, err
	}

	if nullBodyStatus(res.StatusCode) {
		_ = body.Close(b)
		out, err := rt.NewResponse(host.BodyInit{}, init)
		if err != nil {
			return nil, &Error{Kind: KindHost, Op: "new response", Cause: err}
		}
		return out, nil
	}

	stream, err := rt.NewReadableStream(&chunkSource{rt: rt, body: b})
	if err != nil {
		_ = body.Close(b)
		return nil, &Error{Kind: KindStream, Op: "new readable stream", Cause: err}
	}
	out, err := rt.NewResponse(host.BodyInit{Stream: stream}, init)
	if err != nil {
		_ = body.Close(b)
		return nil, &Error{Kind: KindHost, Op: "new response", Cause: err}
	}
	return out, nil
}

func responseInit(rt host.Runtime, res *service.Response) (host.ResponseInit, error) {
	if res.StatusCode < 100 || res.StatusCode > 599 {
		return host.ResponseInit{}, &Error{Kind: KindHost, Op: "response init", Cause: service.ErrStatus}
	}
	hh, err := rt.NewHeaders()
	if err != nil {
		return host.ResponseInit{}, &Error{Kind: KindHost, Op: "new headers", Cause: err}
	}
	if err := copyHeaders(hh, res.Header); err != nil {
		return host.ResponseInit{}, err
	}
	return host.ResponseInit{Status: res.StatusCode, Headers: hh}, nil
}

// copyHeaders appends names in sorted order; values keep their order.
func copyHeaders(dst host.Headers, src http.Header) error {
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if _, err := ParseHeaderName(name); err != nil {
			return err
		}
		for _, v := range src[name] {
			if !headerText(v) {
				return &Error{Kind: KindHeader, Op: "header value to text", Input: name}
			}
			if err := dst.Append(name, v); err != nil {
				return &Error{Kind: KindHost, Op: "append header", Input: name, Cause: err}
			}
		}
	}
	return nil
}

// nullBodyStatus lists statuses a host response may not carry a body for.
func nullBodyStatus(code int) bool {
	switch code {
	case http.StatusSwitchingProtocols, http.StatusNoContent, http.StatusResetContent, http.StatusNotModified:
		return true
	}
	return false
}

// chunkSource copies one producer chunk per pull into a fresh host buffer.
type chunkSource struct {
	rt   host.Runtime
	body body.Body

	busy atomic.Bool
	end  error
}

func (s *chunkSource) Pull(ctx context.Context) (host.Buffer, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrConcurrentPull
	}
	defer s.busy.Store(false)

	if s.end != nil {
		return nil, s.end
	}

	chunk, err := s.body.Next(ctx)
	switch {
	case errors.Is(err, io.EOF):
		s.end = io.EOF
		_ = body.Close(s.body)
		return nil, io.EOF
	case err != nil:
		s.end = &Error{Kind: KindStream, Op: "pull body", Cause: err}
		_ = body.Close(s.body)
		return nil, s.end
	}

	buf := s.rt.NewBuffer(len(chunk))
	buf.CopyFrom(chunk)
	return buf, nil
}
