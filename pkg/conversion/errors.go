package conversion

import (
	"strconv"
	"strings"
)

// Kind categorizes a conversion failure.
type Kind string

const (
	KindMethod   Kind = "method"    // request method is not an HTTP token
	KindURI      Kind = "uri"       // request URL does not parse
	KindHeader   Kind = "header"    // header name or value is malformed
	KindReadBody Kind = "read_body" // host rejected the body read
	KindStream   Kind = "stream"    // body producer fault or stream construction
	KindHost     Kind = "host"      // host rejected a header, init or response value
)

// Error is the structured error returned by this package.
type Error struct {
	Kind  Kind
	Op    string
	Input string
	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("conversion: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Input != "" {
		b.WriteString(" ")
		b.WriteString(quote(e.Input))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Op == "" && t.Input == "" && t.Cause == nil
}

var (
	ErrMethod   = &Error{Kind: KindMethod}
	ErrURI      = &Error{Kind: KindURI}
	ErrHeader   = &Error{Kind: KindHeader}
	ErrReadBody = &Error{Kind: KindReadBody}
	ErrStream   = &Error{Kind: KindStream}
	ErrHost     = &Error{Kind: KindHost}
)

func quote(s string) string {
	const limit = 64
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return strconv.Quote(s)
}
