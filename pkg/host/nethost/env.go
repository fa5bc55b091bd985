package nethost

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Env serves vars and secrets loaded from the manifest and process env.
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

// Background runs WaitUntil work after the response has been written and
// lets the server wait for it on shutdown.
type Background struct {
	wg   sync.WaitGroup
	base context.Context
	log  *zap.Logger
}

// NewBackground returns a tracker whose tasks run with base as their context.
func NewBackground(base context.Context, log *zap.Logger) *Background {
	if log == nil {
		log = zap.NewNop()
	}
	return &Background{base: base, log: log}
}

// Context returns the execution context for one invocation.
func (b *Background) Context() *Context { return &Context{bg: b} }

func (b *Background) run(fn func(context.Context) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := fn(b.base); err != nil {
			b.log.Warn("waitUntil task failed", zap.Error(err))
		}
	}()
}

// Wait blocks until all tasks are done or ctx ends.
func (b *Background) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Context is a host execution context backed by a Background.
type Context struct {
	bg          *Background
	mu          sync.Mutex
	passThrough bool
}

func (c *Context) WaitUntil(fn func(ctx context.Context) error) { c.bg.run(fn) }

// PassThroughOnException is recorded only; the dev host has no origin to fall back to.
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

// ScheduledEvent is a cron firing.
type ScheduledEvent struct {
	Expr string
	At   time.Time
}

func (e ScheduledEvent) Cron() string           { return e.Expr }
func (e ScheduledEvent) ScheduledTime() float64 { return float64(e.At.UnixMilli()) }
