package conversion

import (
	"bytes"
	"context"
	"net/http"

	"github.com/joeydtaylor/steeze-worker/pkg/host"
)

// ConvertRequest materializes a host request: method, URL and headers are
// read synchronously, then the whole body is awaited and attached as a
// fixed-length body.
//
// Header entries are copied leniently. An entry with a missing or non-text
// slot, or with a malformed name or value, is skipped.
func ConvertRequest(ctx context.Context, hr host.Request) (*http.Request, error) {
	method, err := ParseMethod(hr.Method())
	if err != nil {
		return nil, err
	}
	rawURL := hr.URL()

	header := readHeaders(hr.Headers())

	buf, err := hr.ArrayBuffer(ctx)
	if err != nil {
		return nil, &Error{Kind: KindReadBody, Op: "array buffer", Cause: err}
	}
	var data []byte
	if buf != nil {
		data = make([]byte, buf.Len())
		buf.CopyTo(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: KindURI, Op: "build request", Input: rawURL, Cause: err}
	}
	req.Header = header
	if h := header.Get("Host"); h != "" {
		req.Host = h
	}
	return req, nil
}

func readHeaders(hh host.Headers) http.Header {
	out := http.Header{}
	if hh == nil {
		return out
	}
	entries, err := hh.Entries()
	if err != nil || entries == nil {
		return out
	}
	for e := range entries {
		k, ok := text(e.Key)
		if !ok {
			continue
		}
		v, ok := text(e.Value)
		if !ok {
			continue
		}
		name, err := ParseHeaderName(k)
		if err != nil {
			continue
		}
		value, err := ParseHeaderValue(v)
		if err != nil {
			continue
		}
		out[name] = append(out[name], value)
	}
	return out
}

func text(v host.Value) (string, bool) {
	if v == nil {
		return "", false
	}
	return v.AsString()
}
