package conversion

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/joeydtaylor/steeze-worker/pkg/host"
	"github.com/joeydtaylor/steeze-worker/pkg/host/memhost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertRequest_Basic(t *testing.T) {
	hh := memhost.NewHeaders(
		[2]string{"content-type", "application/json"},
		[2]string{"host", "example.com"},
	)
	hr := memhost.NewRequest(http.MethodPost, "https://example.com/items?id=7", hh, []byte(`{"a":1}`))

	req, err := ConvertRequest(context.Background(), hr)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "https", req.URL.Scheme)
	assert.Equal(t, "/items", req.URL.Path)
	assert.Equal(t, "7", req.URL.Query().Get("id"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "example.com", req.Host)
	assert.EqualValues(t, 7, req.ContentLength)

	data, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestConvertRequest_RepeatedHeadersAppend(t *testing.T) {
	hh := memhost.NewHeaders(
		[2]string{"accept", "text/html"},
		[2]string{"Accept", "application/json"},
	)
	req, err := ConvertRequest(context.Background(), memhost.NewRequest("GET", "https://example.com/", hh, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"text/html", "application/json"}, req.Header.Values("Accept"))
}

func TestConvertRequest_SkipsBadHeaderEntries(t *testing.T) {
	hh := memhost.NewHeaders([2]string{"x-good", "1"})
	hh.AddRaw(host.Undefined, host.Str("v"))
	hh.AddRaw(host.Str("x-no-value"), nil)
	hh.AddRaw(host.Str("bad name"), host.Str("v"))
	hh.AddRaw(host.Str("x-bad-value"), host.Str("a\r\nb"))
	hh.AddRaw(host.Str("x-number"), host.Undefined)

	req, err := ConvertRequest(context.Background(), memhost.NewRequest("GET", "https://example.com/", hh, nil))
	require.NoError(t, err)
	assert.Equal(t, http.Header{"X-Good": {"1"}}, req.Header)
}

func TestConvertRequest_EntriesFailureMeansNoHeaders(t *testing.T) {
	hh := memhost.NewHeaders([2]string{"x-good", "1"})
	hh.EntriesErr = errors.New("no entries view")

	req, err := ConvertRequest(context.Background(), memhost.NewRequest("GET", "https://example.com/", hh, nil))
	require.NoError(t, err)
	assert.Empty(t, req.Header)
}

func TestConvertRequest_ExtensionMethod(t *testing.T) {
	req, err := ConvertRequest(context.Background(), memhost.NewRequest("PURGE", "https://example.com/cache", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "PURGE", req.Method)
}

func TestConvertRequest_Failures(t *testing.T) {
	ctx := context.Background()

	_, err := ConvertRequest(ctx, memhost.NewRequest("BAD METHOD", "https://example.com/", nil, nil))
	assert.ErrorIs(t, err, ErrMethod)

	_, err = ConvertRequest(ctx, memhost.NewRequest("GET", "::not a url", nil, nil))
	assert.ErrorIs(t, err, ErrURI)

	boom := errors.New("body already used")
	hr := memhost.NewRequest("POST", "https://example.com/", nil, []byte("x"))
	hr.BodyErr = boom
	_, err = ConvertRequest(ctx, hr)
	assert.ErrorIs(t, err, ErrReadBody)
	assert.ErrorIs(t, err, boom)
}

func TestConvertRequest_EmptyBody(t *testing.T) {
	req, err := ConvertRequest(context.Background(), memhost.NewRequest("GET", "https://example.com/", nil, nil))
	require.NoError(t, err)
	data, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Empty(t, data)
}
