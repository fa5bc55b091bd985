package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/joeydtaylor/steeze-worker/pkg/body"
	"github.com/joeydtaylor/steeze-worker/pkg/service"
)

// Collect records request counters when a call resolves and the latency and
// stream counters as the body is pulled.
func Collect(opts ...Option) service.Layer {
	l := newLabels(opts)
	return func(next service.Service) service.Service {
		return &collector{next: next, labels: l}
	}
}

type collector struct {
	next   service.Service
	labels *labels
}

func (c *collector) Ready(ctx context.Context) error { return c.next.Ready(ctx) }

func (c *collector) Call(ctx context.Context, r *http.Request) (*service.Response, error) {
	start := time.Now()
	res, err := c.next.Call(ctx, r)

	if c.labels.skipped(r) {
		return res, err
	}

	code := "error"
	if err == nil && res != nil {
		code = strconv.Itoa(res.StatusCode)
	}
	totalHttpRequestsToUri.WithLabelValues(code, c.labels.uri(r), r.Method).Inc()
	totalHttpRequests.WithLabelValues(code, r.Method).Inc()

	if err != nil || res == nil {
		responseTime.Observe(time.Since(start).Seconds())
		return res, err
	}
	if res.Body == nil {
		res.Body = body.Empty()
	}
	res.Body = &countedBody{inner: res.Body, start: start}
	return res, nil
}

type countedBody struct {
	inner body.Body
	start time.Time
	once  sync.Once
}

func (b *countedBody) Next(ctx context.Context) ([]byte, error) {
	chunk, err := b.inner.Next(ctx)
	if err == nil {
		streamedChunks.Inc()
		streamedBytes.Add(float64(len(chunk)))
		return chunk, nil
	}
	b.once.Do(func() {
		if !errors.Is(err, io.EOF) {
			streamFaults.Inc()
		}
		responseTime.Observe(time.Since(b.start).Seconds())
	})
	return nil, err
}

func (b *countedBody) Close() error { return body.Close(b.inner) }
