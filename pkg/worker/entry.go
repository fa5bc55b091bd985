// Package worker turns user functions into the three entry points a host
// invokes: fetch, scheduled and start.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/joeydtaylor/steeze-worker/pkg/conversion"
	"github.com/joeydtaylor/steeze-worker/pkg/host"
	"github.com/joeydtaylor/steeze-worker/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-worker/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-worker/pkg/service"
	"go.uber.org/zap"
)

// Wire names of the entry points. Hosts look exports up by these names.
const (
	RoleFetch     = "fetch"
	RoleScheduled = "scheduled"
	RoleStart     = "start"
)

// ErrNoRuntime is returned when neither the options nor the invocation
// context carry a host runtime.
var ErrNoRuntime = errors.New("worker: no host runtime for invocation")

// FatalError is the panic value an entry point aborts the invocation with.
type FatalError struct {
	Role string
	Err  error
}

func (e *FatalError) Error() string { return fmt.Sprintf("worker: %s aborted: %v", e.Role, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// FetchFunc builds the service for one request.
type FetchFunc func(ctx context.Context, env Env, c *Context) (service.Service, error)

// ScheduledFunc handles a cron trigger.
type ScheduledFunc func(ctx context.Context, ev ScheduledEvent, env Env, c ScheduleContext) error

// StartFunc runs once when the module is initialized.
type StartFunc func()

// Host-facing signatures.
type (
	FetchEntry     func(ctx context.Context, req host.Request, env host.Env, hctx host.Context) host.Response
	ScheduledEntry func(ctx context.Context, ev host.ScheduledEvent, env host.Env, sctx host.ScheduleContext)
	StartEntry     func()
)

type options struct {
	log               *zap.Logger
	rt                host.Runtime
	respondWithErrors bool
}

// Option configures an entry point.
type Option func(*options)

// WithLogger sets where failures are logged; the default is the console.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithRuntime pins the host runtime instead of taking it from the invocation
// context.
func WithRuntime(rt host.Runtime) Option { return func(o *options) { o.rt = rt } }

// RespondWithErrors turns pipeline failures into a 500 response carrying the
// error text. Off by default: failures abort the invocation.
func RespondWithErrors(on bool) Option { return func(o *options) { o.respondWithErrors = on } }

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	if o.log == nil {
		o.log = logger.NewConsole()
	}
	return o
}

// NewFetch wraps fn as the on-request entry point: convert the host request,
// build the service, dispatch, and stream the response back.
func NewFetch(fn FetchFunc, opts ...Option) FetchEntry {
	o := buildOptions(opts)
	return func(ctx context.Context, req host.Request, env host.Env, hctx host.Context) host.Response {
		wctx := NewContext(hctx)
		rt := o.rt
		if rt == nil {
			rt, _ = host.RuntimeFrom(ctx)
		}

		res, err := serveFetch(ctx, rt, fn, req, NewEnv(env), wctx)
		if err == nil {
			metrics.ObserveEntry(RoleFetch, metrics.OutcomeOK)
			return res
		}

		o.log.Error("fetch failed",
			zap.String("invocation", wctx.ID()),
			zap.String("method", req.Method()),
			zap.String("url", req.URL()),
			zap.Error(err),
		)
		if o.respondWithErrors && rt != nil {
			out, rerr := errorResponse(ctx, rt, err)
			if rerr == nil {
				metrics.ObserveEntry(RoleFetch, metrics.OutcomeResponded)
				return out
			}
			err = errors.Join(err, rerr)
		}
		metrics.ObserveEntry(RoleFetch, metrics.OutcomeAborted)
		panic(&FatalError{Role: RoleFetch, Err: err})
	}
}

func serveFetch(ctx context.Context, rt host.Runtime, fn FetchFunc, hreq host.Request, env Env, wctx *Context) (host.Response, error) {
	if rt == nil {
		return nil, ErrNoRuntime
	}
	req, err := conversion.ConvertRequest(ctx, hreq)
	if err != nil {
		return nil, err
	}
	svc, err := fn(ctx, env, wctx)
	if err != nil {
		return nil, err
	}
	res, err := service.Dispatch(ctx, svc, req)
	if err != nil {
		return nil, err
	}
	return conversion.ConvertResponse(ctx, rt, res)
}

func errorResponse(ctx context.Context, rt host.Runtime, cause error) (host.Response, error) {
	res, err := service.Text(http.StatusInternalServerError, cause.Error())
	if err != nil {
		return nil, err
	}
	return conversion.ConvertResponse(ctx, rt, res)
}

// NewScheduled wraps fn as the on-schedule entry point. An error from fn
// aborts the invocation.
func NewScheduled(fn ScheduledFunc, opts ...Option) ScheduledEntry {
	o := buildOptions(opts)
	return func(ctx context.Context, ev host.ScheduledEvent, env host.Env, sctx host.ScheduleContext) {
		event := newScheduledEvent(ev)
		if err := fn(ctx, event, NewEnv(env), ScheduleContext{inner: sctx}); err != nil {
			o.log.Error("scheduled failed", zap.String("cron", event.Cron), zap.Error(err))
			metrics.ObserveEntry(RoleScheduled, metrics.OutcomeAborted)
			panic(&FatalError{Role: RoleScheduled, Err: err})
		}
		metrics.ObserveEntry(RoleScheduled, metrics.OutcomeOK)
	}
}

// NewStart wraps fn as the on-start entry point.
func NewStart(fn StartFunc) StartEntry {
	return func() {
		fn()
		metrics.ObserveEntry(RoleStart, metrics.OutcomeOK)
	}
}
