package memhost

import (
	"context"
	"errors"
	"sync"
)

// Env serves vars, secrets and bindings from maps.
type Env struct {
	Vars     map[string]string
	Secrets  map[string]string
	Bindings map[string]any
}

func (e *Env) Var(name string) (string, bool) {
	v, ok := e.Vars[name]
	return v, ok
}

func (e *Env) Secret(name string) (string, bool) {
	v, ok := e.Secrets[name]
	return v, ok
}

func (e *Env) Binding(name string) (any, bool) {
	v, ok := e.Bindings[name]
	return v, ok
}

// Context records background work handed to WaitUntil.
type Context struct {
	mu          sync.Mutex
	waits       []func(context.Context) error
	passThrough bool
}

func (c *Context) WaitUntil(fn func(ctx context.Context) error) {
	c.mu.Lock()
	c.waits = append(c.waits, fn)
	c.mu.Unlock()
}

func (c *Context) PassThroughOnException() {
	c.mu.Lock()
	c.passThrough = true
	c.mu.Unlock()
}

// PassedThrough reports whether PassThroughOnException was called.
func (c *Context) PassedThrough() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passThrough
}

// Wait runs the recorded background work in order and joins the errors.
func (c *Context) Wait(ctx context.Context) error {
	c.mu.Lock()
	waits := c.waits
	c.waits = nil
	c.mu.Unlock()

	var errs []error
	for _, fn := range waits {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

// ScheduledEvent is a fixed cron trigger.
type ScheduledEvent struct {
	Expr string
	At   float64
}

func (e ScheduledEvent) Cron() string           { return e.Expr }
func (e ScheduledEvent) ScheduledTime() float64 { return e.At }
