package logger

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/joeydtaylor/steeze-worker/pkg/body"
	"github.com/joeydtaylor/steeze-worker/pkg/service"
	"go.uber.org/zap"
)

// Access logs one record per dispatched request. The record is written when
// the response body ends, so responseSize covers the streamed bytes. A nil
// logger means AccessLogger().
func Access(l *zap.Logger, opts ...AccessOption) service.Layer {
	cfg := newAccessConfig(opts)
	return func(next service.Service) service.Service {
		return &accessService{next: next, log: l, cfg: cfg}
	}
}

type accessService struct {
	next service.Service
	log  *zap.Logger
	cfg  accessConfig
}

func (a *accessService) Ready(ctx context.Context) error { return a.next.Ready(ctx) }

func (a *accessService) Call(ctx context.Context, r *http.Request) (*service.Response, error) {
	l := a.log
	if l == nil {
		l = AccessLogger()
	}

	// the body is fully resident, so peeking at it leaves r untouched
	var reqBody []byte
	if len(a.cfg.bodyPaths) > 0 && r.GetBody != nil {
		if rc, err := r.GetBody(); err == nil {
			reqBody, _ = io.ReadAll(rc)
			rc.Close()
		}
	}

	scheme := "http"
	if r.URL != nil && r.URL.Scheme != "" {
		scheme = r.URL.Scheme
	}

	start := time.Now()
	log := l.With(
		zap.String("dateTime", start.UTC().Format(time.RFC1123)),
		zap.String("requestId", chimd.GetReqID(ctx)),
		zap.String("httpScheme", scheme),
		zap.String("httpProto", r.Proto),
		zap.String("httpMethod", r.Method),
		zap.String("uri", r.URL.Path),
	)
	if a.cfg.logsBody(r, reqBody) {
		log = log.With(zap.ByteString("requestData", reqBody))
	}

	res, err := a.next.Call(ctx, r)
	if err != nil {
		log.Error("", zap.Duration("lat", time.Since(start)), zap.Error(err))
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	if res.Body == nil {
		res.Body = body.Empty()
	}
	res.Body = &loggedBody{inner: res.Body, log: log.With(zap.Int("status", res.StatusCode)), start: start}
	return res, nil
}

type loggedBody struct {
	inner body.Body
	log   *zap.Logger
	start time.Time

	size int
	once sync.Once
}

func (b *loggedBody) Next(ctx context.Context) ([]byte, error) {
	chunk, err := b.inner.Next(ctx)
	if err == nil {
		b.size += len(chunk)
		return chunk, nil
	}
	b.once.Do(func() {
		fields := []zap.Field{zap.Duration("lat", time.Since(b.start)), zap.Int("responseSize", b.size)}
		if errors.Is(err, io.EOF) {
			b.log.Info("", fields...)
			return
		}
		b.log.Warn("", append(fields, zap.NamedError("bodyError", err))...)
	})
	return nil, err
}

func (b *loggedBody) Close() error { return body.Close(b.inner) }
