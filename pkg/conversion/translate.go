// Package conversion moves requests and responses across the host boundary:
// host request to *http.Request on the way in, service.Response to a streamed
// host response on the way out.
package conversion

import (
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"
)

var standardMethods = map[string]string{
	http.MethodGet:     http.MethodGet,
	http.MethodHead:    http.MethodHead,
	http.MethodPost:    http.MethodPost,
	http.MethodPut:     http.MethodPut,
	http.MethodPatch:   http.MethodPatch,
	http.MethodDelete:  http.MethodDelete,
	http.MethodConnect: http.MethodConnect,
	http.MethodOptions: http.MethodOptions,
	http.MethodTrace:   http.MethodTrace,
}

// ParseMethod accepts any HTTP token. The standard verbs come back as the
// net/http constants; extension methods are returned unchanged.
func ParseMethod(s string) (string, error) {
	if m, ok := standardMethods[s]; ok {
		return m, nil
	}
	if !isToken(s) {
		return "", &Error{Kind: KindMethod, Op: "parse method", Input: s}
	}
	return s, nil
}

// ParseHeaderName validates a field name and returns its canonical form.
func ParseHeaderName(s string) (string, error) {
	if !httpguts.ValidHeaderFieldName(s) {
		return "", &Error{Kind: KindHeader, Op: "parse header name", Input: s}
	}
	return http.CanonicalHeaderKey(s), nil
}

// ParseHeaderValue validates a field value: no CTLs other than HTAB.
func ParseHeaderValue(s string) (string, error) {
	if !httpguts.ValidHeaderFieldValue(s) {
		return "", &Error{Kind: KindHeader, Op: "parse header value", Input: s}
	}
	return s, nil
}

// headerText reports whether a value survives conversion to host text:
// visible ASCII, space and HTAB only.
func headerText(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\t' {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool { return !httpguts.IsTokenRune(r) }) < 0
}
