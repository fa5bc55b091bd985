// Package host describes the object model of the runtime that invokes a worker.
//
// Every value here is owned by the host and is only valid for the duration of
// the invocation it was handed to. Nothing in this module keeps a host value
// past the call that received it.
package host

import (
	"context"
	"iter"
)

// Value is an opaque host value, e.g. one slot of a header entry.
type Value interface {
	// AsString reports the value as text when the host value is a string.
	AsString() (string, bool)
}

type str string

func (s str) AsString() (string, bool) { return string(s), true }

type undefined struct{}

func (undefined) AsString() (string, bool) { return "", false }

// Str wraps s as a host string value.
func Str(s string) Value { return str(s) }

// Undefined is a host value that is not text.
var Undefined Value = undefined{}

// Entry is one (key, value) pair yielded by a header entries view.
// A nil slot means the host iterator ran out before yielding it.
type Entry struct {
	Key   Value
	Value Value
}

// Headers is the host-native header collection.
type Headers interface {
	Entries() (iter.Seq[Entry], error)
	Append(name, value string) error
}

// Buffer is the host binary array type.
type Buffer interface {
	Len() int
	CopyTo(dst []byte) int
	CopyFrom(src []byte) int
}

// Request is the host-native incoming request.
type Request interface {
	Method() string
	URL() string
	Headers() Headers
	// ArrayBuffer reads the whole body in one shot. There is no incremental read.
	ArrayBuffer(ctx context.Context) (Buffer, error)
}

// StreamSource is pulled by the host one chunk at a time. io.EOF ends the
// stream, any other error aborts it.
type StreamSource interface {
	Pull(ctx context.Context) (Buffer, error)
}

// ReadableStream is the host-native readable stream.
type ReadableStream interface{}

// Response is the host-native response.
type Response interface{}

// ResponseInit carries the response head.
type ResponseInit struct {
	Status  int
	Headers Headers
}

// BodyInit selects the response body; the zero value means no body.
type BodyInit struct {
	Stream ReadableStream
	Binary Buffer
}

// Runtime constructs host values.
type Runtime interface {
	NewHeaders() (Headers, error)
	NewBuffer(n int) Buffer
	NewReadableStream(src StreamSource) (ReadableStream, error)
	NewResponse(body BodyInit, init ResponseInit) (Response, error)
}

// Env exposes vars, secrets and bindings configured for the worker.
type Env interface {
	Var(name string) (string, bool)
	Secret(name string) (string, bool)
	Binding(name string) (any, bool)
}

// Context is the per-invocation execution context.
type Context interface {
	WaitUntil(fn func(ctx context.Context) error)
	PassThroughOnException()
}

// ScheduledEvent is the payload of a cron trigger.
type ScheduledEvent interface {
	Cron() string
	// ScheduledTime is milliseconds since the Unix epoch.
	ScheduledTime() float64
}

// ScheduleContext is the execution context of a scheduled invocation.
type ScheduleContext interface {
	WaitUntil(fn func(ctx context.Context) error)
}

type runtimeKey struct{}

// WithRuntime attaches the runtime serving an invocation to its context.
func WithRuntime(ctx context.Context, rt Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// RuntimeFrom returns the runtime attached by WithRuntime.
func RuntimeFrom(ctx context.Context) (Runtime, bool) {
	rt, ok := ctx.Value(runtimeKey{}).(Runtime)
	return rt, ok && rt != nil
}
