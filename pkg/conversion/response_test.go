package conversion

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/joeydtaylor/steeze-worker/pkg/body"
	"github.com/joeydtaylor/steeze-worker/pkg/host/memhost"
	"github.com/joeydtaylor/steeze-worker/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func convert(t *testing.T, rt *memhost.Runtime, res *service.Response) *memhost.Response {
	t.Helper()
	out, err := ConvertResponse(context.Background(), rt, res)
	require.NoError(t, err)
	mr, ok := out.(*memhost.Response)
	require.True(t, ok)
	return mr
}

type closeTracker struct {
	body.Body
	closed int
}

func (c *closeTracker) Close() error { c.closed++; return nil }

func TestConvertResponse_ChunksInOrder(t *testing.T) {
	res := &service.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       body.Chunks([]byte("b1"), []byte("b2"), []byte("b3")),
	}
	mr := convert(t, memhost.New(), res)

	events, err := mr.Stream.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 4)
	for i, want := range []string{"b1", "b2", "b3"} {
		assert.Equal(t, memhost.EventPush, events[i].Kind)
		assert.Equal(t, want, string(events[i].Data))
	}
	assert.Equal(t, memhost.EventClose, events[3].Kind)
}

func TestConvertResponse_EmptyBodyClosesImmediately(t *testing.T) {
	mr := convert(t, memhost.New(), &service.Response{StatusCode: http.StatusOK})
	events, err := mr.Stream.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []memhost.Event{{Kind: memhost.EventClose}}, events)
}

func TestConvertResponse_FaultAfterFirstChunk(t *testing.T) {
	boom := errors.New("upstream reset")
	calls := 0
	tracked := &closeTracker{Body: body.Func(func(context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return []byte("b1"), nil
		}
		return nil, boom
	})}
	mr := convert(t, memhost.New(), &service.Response{
		StatusCode: http.StatusCreated,
		Header:     http.Header{"X-A": {"1"}},
		Body:       tracked,
	})

	events, err := mr.Stream.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, mr.Status, "head is fixed before the body runs")
	assert.Equal(t, [][2]string{{"X-A", "1"}}, mr.Headers.Pairs())
	require.Len(t, events, 2)
	assert.Equal(t, "b1", string(events[0].Data))
	assert.Equal(t, memhost.EventError, events[1].Kind)
	assert.ErrorIs(t, events[1].Err, ErrStream)
	assert.ErrorIs(t, events[1].Err, boom)
	assert.Equal(t, 1, tracked.closed)
	assert.Equal(t, 2, calls)
}

func TestConvertResponse_PullAfterEndRepeatsEnd(t *testing.T) {
	src := &chunkSource{rt: memhost.New(), body: body.String("x")}
	ctx := context.Background()

	_, err := src.Pull(ctx)
	require.NoError(t, err)
	_, err = src.Pull(ctx)
	assert.ErrorIs(t, err, io.EOF)
	_, err = src.Pull(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestConvertResponse_HeadersRoundTrip(t *testing.T) {
	res := &service.Response{
		StatusCode: http.StatusCreated,
		Header: http.Header{
			"X-B":          {"2"},
			"Set-Cookie":   {"a=1", "b=2"},
			"Content-Type": {"text/plain"},
		},
	}
	mr := convert(t, memhost.New(), res)

	assert.Equal(t, http.StatusCreated, mr.Status)
	assert.Equal(t, [][2]string{
		{"Content-Type", "text/plain"},
		{"Set-Cookie", "a=1"},
		{"Set-Cookie", "b=2"},
		{"X-B", "2"},
	}, mr.Headers.Pairs())
}

func TestConvertResponse_NonTextHeaderIsError(t *testing.T) {
	tracked := &closeTracker{Body: body.String("never")}
	res := &service.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"X-Name": {"café"}},
		Body:       tracked,
	}
	_, err := ConvertResponse(context.Background(), memhost.New(), res)
	assert.ErrorIs(t, err, ErrHeader)
	assert.Equal(t, 1, tracked.closed)
}

func TestConvertResponse_NullBodyStatus(t *testing.T) {
	for _, code := range []int{http.StatusSwitchingProtocols, http.StatusNoContent, http.StatusResetContent, http.StatusNotModified} {
		tracked := &closeTracker{Body: body.String("ignored")}
		mr := convert(t, memhost.New(), &service.Response{StatusCode: code, Body: tracked})
		assert.Nil(t, mr.Stream, "%d", code)
		assert.Nil(t, mr.Binary, "%d", code)
		assert.Equal(t, 1, tracked.closed, "%d", code)
	}
}

func TestConvertResponse_HostFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("host said no")

	_, err := ConvertResponse(ctx, &memhost.Runtime{FailHeaders: boom}, &service.Response{StatusCode: 200})
	assert.ErrorIs(t, err, ErrHost)
	assert.ErrorIs(t, err, boom)

	_, err = ConvertResponse(ctx, &memhost.Runtime{FailStream: boom}, &service.Response{StatusCode: 200})
	assert.ErrorIs(t, err, ErrStream)

	_, err = ConvertResponse(ctx, &memhost.Runtime{FailResponse: boom}, &service.Response{StatusCode: 200})
	assert.ErrorIs(t, err, ErrHost)

	_, err = ConvertResponse(ctx, memhost.New(), &service.Response{StatusCode: 1000})
	assert.ErrorIs(t, err, ErrHost)
	assert.ErrorIs(t, err, service.ErrStatus)

	_, err = ConvertResponse(ctx, memhost.New(), nil)
	assert.ErrorIs(t, err, service.ErrNilResponse)
}

func TestConvertResponse_ConcurrentPullRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	b := body.Func(func(context.Context) ([]byte, error) {
		close(entered)
		<-release
		return nil, io.EOF
	})
	src := &chunkSource{rt: memhost.New(), body: b}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = src.Pull(context.Background())
	}()

	<-entered
	_, err := src.Pull(context.Background())
	assert.ErrorIs(t, err, ErrConcurrentPull)
	close(release)
	wg.Wait()
}

func TestConvertResponse_FromHandler(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "Hi!")
	})
	req, err := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	require.NoError(t, err)
	res, err := service.Dispatch(context.Background(), service.Handler(h), req)
	require.NoError(t, err)

	mr := convert(t, memhost.New(), res)
	text, err := mr.Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hi!", text)
	assert.Equal(t, [][2]string{{"Content-Type", "text/plain"}}, mr.Headers.Pairs())
}
