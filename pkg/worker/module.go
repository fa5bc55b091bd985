package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/joeydtaylor/steeze-worker/pkg/host"
)

// ErrNoExport is returned when a host invokes a role the module does not export.
var ErrNoExport = errors.New("worker: entry point not exported")

// Module is the export table of one worker build: at most one entry per role,
// keyed by the wire names fetch, scheduled and start.
//
// Start runs exactly once per module, before the first Fetch or Scheduled.
type Module struct {
	mu        sync.RWMutex
	fetch     FetchEntry
	scheduled ScheduledEntry
	start     StartEntry

	startOnce sync.Once
}

// Default is the table generated code registers into.
var Default = &Module{}

// ExportFetch registers the fetch entry. Registering a role twice panics.
func (m *Module) ExportFetch(e FetchEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e == nil {
		panic("worker: nil fetch entry")
	}
	if m.fetch != nil {
		panic("worker: multiple registrations for " + RoleFetch)
	}
	m.fetch = e
}

// ExportScheduled registers the scheduled entry.
func (m *Module) ExportScheduled(e ScheduledEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e == nil {
		panic("worker: nil scheduled entry")
	}
	if m.scheduled != nil {
		panic("worker: multiple registrations for " + RoleScheduled)
	}
	m.scheduled = e
}

// ExportStart registers the start entry.
func (m *Module) ExportStart(e StartEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e == nil {
		panic("worker: nil start entry")
	}
	if m.start != nil {
		panic("worker: multiple registrations for " + RoleStart)
	}
	m.start = e
}

// Exports lists the registered wire names, sorted.
func (m *Module) Exports() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	if m.fetch != nil {
		out = append(out, RoleFetch)
	}
	if m.scheduled != nil {
		out = append(out, RoleScheduled)
	}
	if m.start != nil {
		out = append(out, RoleStart)
	}
	sort.Strings(out)
	return out
}

// Init runs the start entry if there is one. Only the first call does anything.
func (m *Module) Init() {
	m.startOnce.Do(func() {
		m.mu.RLock()
		start := m.start
		m.mu.RUnlock()
		if start != nil {
			start()
		}
	})
}

// Fetch invokes the fetch entry.
func (m *Module) Fetch(ctx context.Context, req host.Request, env host.Env, hctx host.Context) (host.Response, error) {
	m.Init()
	m.mu.RLock()
	e := m.fetch
	m.mu.RUnlock()
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoExport, RoleFetch)
	}
	return e(ctx, req, env, hctx), nil
}

// Scheduled invokes the scheduled entry.
func (m *Module) Scheduled(ctx context.Context, ev host.ScheduledEvent, env host.Env, sctx host.ScheduleContext) error {
	m.Init()
	m.mu.RLock()
	e := m.scheduled
	m.mu.RUnlock()
	if e == nil {
		return fmt.Errorf("%w: %s", ErrNoExport, RoleScheduled)
	}
	e(ctx, ev, env, sctx)
	return nil
}
