package logger

import (
	"net/http"
	"strings"
)

const maxLoggedBody = 1 << 16

// AccessOption configures an Access layer.
type AccessOption func(*accessConfig)

type accessConfig struct {
	bodyPaths map[string]struct{}
}

// WithBodyLogPaths logs the JSON request body of write requests on these
// paths. Nothing is logged by default.
func WithBodyLogPaths(paths ...string) AccessOption {
	return func(c *accessConfig) {
		for _, p := range paths {
			if p = strings.TrimSpace(p); p != "" {
				c.bodyPaths[p] = struct{}{}
			}
		}
	}
}

func newAccessConfig(opts []AccessOption) accessConfig {
	c := accessConfig{bodyPaths: map[string]struct{}{}}
	for _, o := range opts {
		if o != nil {
			o(&c)
		}
	}
	return c
}

// logsBody reports whether a request body belongs in the access record:
// small JSON payloads of POST, PUT and PATCH on an allowlisted path.
func (c accessConfig) logsBody(r *http.Request, body []byte) bool {
	if len(c.bodyPaths) == 0 || len(body) == 0 || len(body) > maxLoggedBody {
		return false
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return false
	}
	_, ok := c.bodyPaths[r.URL.Path]
	return ok
}
