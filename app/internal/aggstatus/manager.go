package aggstatus

import (
	"context"

	"feederconsole/app/internal/registry"
)

// Observer is told about every snapshot produced by a real probe. It runs
// on the caller's goroutine after the aggregator's lock is released.
type Observer func(Snapshot)

// Manager holds one reconciler per registered aggregator. The set is fixed
// at construction.
type Manager struct {
	order  []string
	byName map[string]*Reconciler
	flags  Flags

	observer Observer
}

// NewManager builds a reconciler for every identity in reg.
func NewManager(reg *registry.Registry, flags Flags, containers ContainerProber, opts Options) *Manager {
	m := &Manager{byName: map[string]*Reconciler{}, flags: flags}
	for _, id := range reg.All() {
		m.order = append(m.order, id.Name)
		m.byName[id.Name] = NewReconciler(id, flags, containers, opts)
	}
	return m
}

// SetObserver installs fn. Call it before the manager is shared.
func (m *Manager) SetObserver(fn Observer) {
	m.observer = fn
}

// Names lists aggregators in registration order.
func (m *Manager) Names() []string {
	return append([]string(nil), m.order...)
}

// CheckAll checks every aggregator in registration order.
func (m *Manager) CheckAll(ctx context.Context, force bool) []Snapshot {
	out := make([]Snapshot, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.run(ctx, m.byName[name], force))
	}
	return out
}

// CheckOne checks a single aggregator. ok is false for an unknown name.
func (m *Manager) CheckOne(ctx context.Context, name string, force bool) (Snapshot, bool) {
	r, ok := m.byName[name]
	if !ok {
		return Snapshot{}, false
	}
	return m.run(ctx, r, force), true
}

// Good lists aggregators whose current snapshot IsGood.
func (m *Manager) Good(ctx context.Context) []string {
	var out []string
	for _, s := range m.CheckAll(ctx, false) {
		if s.IsGood() {
			out = append(out, s.Aggregator)
		}
	}
	return out
}

// Enabled lists aggregators switched on in configuration. It reads flags
// directly and never probes.
func (m *Manager) Enabled() []string {
	var out []string
	for _, name := range m.order {
		if m.flags.Bool(m.byName[name].id.EnabledKey) {
			out = append(out, name)
		}
	}
	return out
}

func (m *Manager) run(ctx context.Context, r *Reconciler, force bool) Snapshot {
	s, fresh := r.check(ctx, force)
	if fresh && m.observer != nil {
		m.observer(s.clone())
	}
	return s
}
