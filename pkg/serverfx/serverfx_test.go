package serverfx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joeydtaylor/steeze-worker/pkg/body"
	"github.com/joeydtaylor/steeze-worker/pkg/host"
	"github.com/joeydtaylor/steeze-worker/pkg/host/nethost"
	"github.com/joeydtaylor/steeze-worker/pkg/service"
	"github.com/joeydtaylor/steeze-worker/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newModule(fn worker.FetchFunc, opts ...worker.Option) *worker.Module {
	m := &worker.Module{}
	m.ExportFetch(worker.NewFetch(fn, append([]worker.Option{worker.WithLogger(zap.NewNop())}, opts...)...))
	return m
}

func newHandler(m *worker.Module) (http.Handler, *nethost.Background) {
	return newHandlerWith(m, false, zap.NewNop())
}

func newHandlerWith(m *worker.Module, respondWithErrors bool, log *zap.Logger) (http.Handler, *nethost.Background) {
	bg := nethost.NewBackground(context.Background(), zap.NewNop())
	env := &nethost.Env{Vars: map[string]string{"GREETING": "Hi!"}}
	return FetchHandler(m, env, bg, 1<<10, respondWithErrors, log), bg
}

func greeter(_ context.Context, env worker.Env, _ *worker.Context) (service.Service, error) {
	greeting, err := env.Var("GREETING")
	if err != nil {
		return nil, err
	}
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, greeting)
	})
	r.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, r.Body)
	})
	return service.Handler(r), nil
}

func TestFetchHandler_OverHTTP(t *testing.T) {
	h, bg := newHandler(newModule(greeter))
	srv := httptest.NewServer(h)
	defer srv.Close()

	res, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Hi!", string(data))

	res, err = http.Post(srv.URL+"/echo", "text/plain", strings.NewReader("round trip"))
	require.NoError(t, err)
	defer res.Body.Close()
	data, err = io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "round trip", string(data))
	assert.Equal(t, "application/octet-stream", res.Header.Get("Content-Type"))

	require.NoError(t, bg.Wait(context.Background()))
}

func TestFetchHandler_BodyTooLarge(t *testing.T) {
	h, _ := newHandler(newModule(greeter, worker.RespondWithErrors(true)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", 2<<10))))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "too large")
}

func TestFetchHandler_AbortedInvocation(t *testing.T) {
	h, _ := newHandler(newModule(func(context.Context, worker.Env, *worker.Context) (service.Service, error) {
		return nil, errors.New("no service today")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestFetchHandler_RespondWithErrorsSetting(t *testing.T) {
	unreachable := func(context.Context, worker.Env, *worker.Context) (service.Service, error) {
		return nil, errors.New("database unreachable")
	}

	for _, tc := range []struct {
		name string
		on   bool
		want string
	}{
		{"off", false, "Internal Server Error\n"},
		{"on", true, "database unreachable\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newHandlerWith(newModule(unreachable), tc.on, zap.NewNop())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, tc.want, rec.Body.String())
		})
	}
}

func TestFetchHandler_LogsPassThroughRequest(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h, _ := newHandlerWith(newModule(func(_ context.Context, _ worker.Env, c *worker.Context) (service.Service, error) {
		c.PassThroughOnException()
		return nil, errors.New("origin please")
	}), false, zap.New(core))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, true, logs.All()[0].ContextMap()["passThroughOnException"])
}

func TestFetchHandler_NoFetchExport(t *testing.T) {
	h, _ := newHandler(&worker.Module{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestFetchHandler_StreamFaultAbortsConnection(t *testing.T) {
	h, _ := newHandler(newModule(func(context.Context, worker.Env, *worker.Context) (service.Service, error) {
		return service.Func(func(context.Context, *http.Request) (*service.Response, error) {
			calls := 0
			return service.NewResponse(http.StatusOK, nil, body.Func(func(context.Context) ([]byte, error) {
				calls++
				if calls == 1 {
					return []byte("b1"), nil
				}
				return nil, errors.New("reset")
			}))
		}), nil
	}))

	rec := httptest.NewRecorder()
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, "b1", rec.Body.String())
}

func TestScheduler_FiresScheduledEntry(t *testing.T) {
	var got atomic.Value
	m := &worker.Module{}
	m.ExportScheduled(worker.NewScheduled(func(_ context.Context, ev worker.ScheduledEvent, _ worker.Env, _ worker.ScheduleContext) error {
		got.Store(ev)
		return nil
	}, worker.WithLogger(zap.NewNop())))

	s := newScheduler(m, &nethost.Env{}, nethost.NewBackground(context.Background(), nil), zap.NewNop())
	require.NoError(t, s.schedule([]string{"*/5 * * * *"}))
	assert.Len(t, s.c.Entries(), 1)

	at := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
	s.fire("*/5 * * * *", at)
	ev := got.Load().(worker.ScheduledEvent)
	assert.Equal(t, "*/5 * * * *", ev.Cron)
	assert.True(t, at.Equal(ev.ScheduledTime))
}

func TestScheduler_RecoversAbortedJob(t *testing.T) {
	m := &worker.Module{}
	m.ExportScheduled(worker.NewScheduled(func(context.Context, worker.ScheduledEvent, worker.Env, worker.ScheduleContext) error {
		return errors.New("job failed")
	}, worker.WithLogger(zap.NewNop())))

	s := newScheduler(m, &nethost.Env{}, nethost.NewBackground(context.Background(), nil), zap.NewNop())
	assert.NotPanics(t, func() { s.fire("@hourly", time.Now()) })
}

func TestScheduler_WithoutScheduledExport(t *testing.T) {
	s := newScheduler(&worker.Module{}, &nethost.Env{}, nethost.NewBackground(context.Background(), nil), zap.NewNop())
	require.NoError(t, s.schedule([]string{"@hourly"}))
	assert.Empty(t, s.c.Entries())
}

func TestModule_GraphIsComplete(t *testing.T) {
	require.NoError(t, fx.ValidateApp(Module(&worker.Module{})))
}

func TestEnvOr(t *testing.T) {
	t.Setenv("STEEZE_TEST_LISTEN", ":9999")
	assert.Equal(t, ":9999", envOr("STEEZE_TEST_LISTEN", ":8787"))
	assert.Equal(t, ":8787", envOr("STEEZE_TEST_UNSET", ":8787"))
	assert.Equal(t, ":8787", envOr("", ":8787"))
}

var _ host.Runtime = nethost.Runtime{}
