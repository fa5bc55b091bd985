package metrics

import (
	"net/http"
	"strings"
)

// Option configures a Collect layer.
type Option func(*labels)

// labels decides which requests are counted and under which uri label.
type labels struct {
	skip      map[string]struct{}
	skipUnder []string
	uri       func(*http.Request) string
}

func newLabels(opts []Option) *labels {
	l := &labels{
		skip: map[string]struct{}{},
		uri:  func(r *http.Request) string { return r.URL.Path },
	}
	for _, o := range opts {
		if o != nil {
			o(l)
		}
	}
	return l
}

// WithSkipPaths leaves exact paths out of the request counters, e.g. probes
// the worker answers itself. A path ending in "/*" skips the whole subtree.
func WithSkipPaths(paths ...string) Option {
	return func(l *labels) {
		for _, p := range paths {
			p = strings.TrimSpace(p)
			switch {
			case p == "":
			case strings.HasSuffix(p, "/*"):
				l.skipUnder = append(l.skipUnder, strings.TrimSuffix(p, "*"))
			default:
				l.skip[p] = struct{}{}
			}
		}
	}
}

// WithPathNormalizer derives the uri label, e.g. to collapse ids so the label
// stays low-cardinality.
func WithPathNormalizer(fn func(*http.Request) string) Option {
	return func(l *labels) {
		if fn != nil {
			l.uri = fn
		}
	}
}

func (l *labels) skipped(r *http.Request) bool {
	if _, ok := l.skip[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range l.skipUnder {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}
