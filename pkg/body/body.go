// Package body models a response body as a lazy, finite, one-shot sequence
// of byte chunks.
package body

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// Body yields chunks in order. Next returns io.EOF once the body is exhausted;
// any other error is a transport fault and ends the body as well. Next must
// not be called concurrently.
type Body interface {
	Next(ctx context.Context) ([]byte, error)
}

// Func adapts a function to Body.
type Func func(ctx context.Context) ([]byte, error)

func (f Func) Next(ctx context.Context) ([]byte, error) { return f(ctx) }

type empty struct{}

func (empty) Next(context.Context) ([]byte, error) { return nil, io.EOF }

// Empty returns a body with no chunks.
func Empty() Body { return empty{} }

// Bytes returns a body yielding b as a single chunk. An empty b yields nothing.
func Bytes(b []byte) Body {
	if len(b) == 0 {
		return Empty()
	}
	return Chunks(b)
}

// String is Bytes for text.
func String(s string) Body { return Bytes([]byte(s)) }

// Chunks returns a body yielding each chunk as given, empty chunks included.
func Chunks(chunks ...[]byte) Body {
	i := 0
	return Func(func(ctx context.Context) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i >= len(chunks) {
			return nil, io.EOF
		}
		c := chunks[i]
		i++
		return c, nil
	})
}

// Reader returns a body reading r in chunks of at most size bytes.
func Reader(r io.Reader, size int) Body {
	if size <= 0 {
		size = 32 << 10
	}
	var pending error
	return Func(func(ctx context.Context) ([]byte, error) {
		if pending != nil {
			return nil, pending
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if err != nil {
			// the error surfaces on the next call, after the data read with it
			pending = err
		}
		if n > 0 {
			return buf[:n], nil
		}
		if err == nil {
			return []byte{}, nil
		}
		return nil, err
	})
}

// Collect drains b and concatenates the chunks. The bytes read before a
// fault are returned with it.
func Collect(ctx context.Context, b Body) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	for {
		chunk, err := b.Next(ctx)
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return buf.Bytes(), err
		}
		buf.Write(chunk)
	}
}

// Close releases b when it holds resources, such as a handler still writing.
func Close(b Body) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
