package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joeydtaylor/steeze-worker/pkg/host"
)

// ErrBinding is returned when a var, secret or binding is not configured.
var ErrBinding = errors.New("worker: no binding found")

// Env reads the vars, secrets and bindings of the worker.
type Env struct{ inner host.Env }

// NewEnv wraps a host env; a nil env has no bindings.
func NewEnv(e host.Env) Env { return Env{inner: e} }

// Var returns a plain-text variable.
func (e Env) Var(name string) (string, error) {
	if e.inner != nil {
		if v, ok := e.inner.Var(name); ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w for `%s`", ErrBinding, name)
}

// Secret returns a secret. Its String form is redacted.
func (e Env) Secret(name string) (Secret, error) {
	if e.inner != nil {
		if v, ok := e.inner.Secret(name); ok {
			return Secret{value: v}, nil
		}
	}
	return Secret{}, fmt.Errorf("%w for `%s`", ErrBinding, name)
}

// Binding returns a host binding (KV namespace, service, ...) as is.
func (e Env) Binding(name string) (any, error) {
	if e.inner != nil {
		if v, ok := e.inner.Binding(name); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w for `%s`", ErrBinding, name)
}

// Secret holds a secret value.
type Secret struct{ value string }

func (s Secret) Value() string  { return s.value }
func (s Secret) String() string { return "[redacted]" }

// Context is the execution context of one fetch invocation.
type Context struct {
	inner host.Context
	id    string
}

// NewContext wraps a host context and assigns the invocation an id.
func NewContext(c host.Context) *Context {
	return &Context{inner: c, id: uuid.NewString()}
}

// ID identifies the invocation in logs.
func (c *Context) ID() string { return c.id }

// WaitUntil extends the invocation until fn returns.
func (c *Context) WaitUntil(fn func(ctx context.Context) error) {
	if c.inner != nil {
		c.inner.WaitUntil(fn)
	}
}

// PassThroughOnException lets the host forward the request to the origin if
// the worker fails.
func (c *Context) PassThroughOnException() {
	if c.inner != nil {
		c.inner.PassThroughOnException()
	}
}

// ScheduledEvent is a cron trigger.
type ScheduledEvent struct {
	Cron          string
	ScheduledTime time.Time
}

func newScheduledEvent(ev host.ScheduledEvent) ScheduledEvent {
	if ev == nil {
		return ScheduledEvent{}
	}
	return ScheduledEvent{
		Cron:          ev.Cron(),
		ScheduledTime: time.UnixMilli(int64(ev.ScheduledTime())).UTC(),
	}
}

// ScheduleContext is the execution context of one scheduled invocation.
type ScheduleContext struct{ inner host.ScheduleContext }

// WaitUntil extends the invocation until fn returns.
func (c ScheduleContext) WaitUntil(fn func(ctx context.Context) error) {
	if c.inner != nil {
		c.inner.WaitUntil(fn)
	}
}

// Delay waits for d or until ctx is done.
func Delay(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
