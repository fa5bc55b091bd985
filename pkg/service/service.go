// Package service is the request/response capability a worker plugs into the
// host: a value that can be asked whether it is ready and then handles one
// request at a time.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/joeydtaylor/steeze-worker/pkg/body"
)

// Response is a response head plus a lazy body. Status and Header are fixed
// before the first chunk is read from Body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       body.Body
}

// ErrStatus is returned for a status code outside 100-599.
var ErrStatus = errors.New("service: status code must be in the 100-599 range")

// ErrNilResponse is returned when a service resolves without a response.
var ErrNilResponse = errors.New("service: call returned no response")

// NewResponse validates the status and fills in an empty header and body.
func NewResponse(status int, header http.Header, b body.Body) (*Response, error) {
	if !validStatus(status) {
		return nil, fmt.Errorf("%w: %d", ErrStatus, status)
	}
	if header == nil {
		header = http.Header{}
	}
	if b == nil {
		b = body.Empty()
	}
	return &Response{StatusCode: status, Header: header, Body: b}, nil
}

// Text is a text/plain response with msg as its only chunk.
func Text(status int, msg string) (*Response, error) {
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return NewResponse(status, h, body.String(msg))
}

func validStatus(code int) bool { return code >= 100 && code <= 599 }

// Service handles requests. Ready blocks until the service can accept a call;
// Call handles exactly one request.
type Service interface {
	Ready(ctx context.Context) error
	Call(ctx context.Context, req *http.Request) (*Response, error)
}

// Func is a Service that is always ready.
type Func func(ctx context.Context, req *http.Request) (*Response, error)

func (f Func) Ready(context.Context) error { return nil }

func (f Func) Call(ctx context.Context, req *http.Request) (*Response, error) { return f(ctx, req) }

// Layer wraps a Service with extra behavior.
type Layer func(Service) Service

// Chain applies layers so the first one is the outermost.
func Chain(s Service, layers ...Layer) Service {
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i] != nil {
			s = layers[i](s)
		}
	}
	return s
}

// Dispatch waits for svc to become ready and hands it req exactly once.
func Dispatch(ctx context.Context, svc Service, req *http.Request) (*Response, error) {
	if svc == nil {
		return nil, errors.New("service: nil service")
	}
	if err := svc.Ready(ctx); err != nil {
		return nil, fmt.Errorf("service: ready: %w", err)
	}
	res, err := svc.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrNilResponse
	}
	if !validStatus(res.StatusCode) {
		return nil, fmt.Errorf("%w: %d", ErrStatus, res.StatusCode)
	}
	if res.Header == nil {
		res.Header = http.Header{}
	}
	if res.Body == nil {
		res.Body = body.Empty()
	}
	return res, nil
}
