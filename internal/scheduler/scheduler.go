// Package scheduler holds the fixed per-tick phase order and every
// registered system grouped by kind, and reports which systems are due to
// run in a phase. On-demand systems are never part of the per-tick walk.
package scheduler

import (
	"sync"

	"ecsrt/internal/matcher"
)

// TickOrder is the fixed per-tick phase sequence.
var TickOrder = []matcher.Kind{
	matcher.PreFrame,
	matcher.OnLoad,
	matcher.PostLoad,
	matcher.OnFrame,
	matcher.OnStore,
	matcher.PostStore,
	matcher.PostFrame,
}

// Scheduler holds every registered system, grouped by phase, in
// registration order. OnDemand/OnAdd/OnRemove/OnSet systems are tracked too
// (for RunSystem/the move protocol to find) but never appear in
// TickOrder's per-tick walk.
type Scheduler struct {
	mu         sync.Mutex
	registered map[matcher.Kind][]*matcher.System
	quit       bool
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{registered: make(map[matcher.Kind][]*matcher.System)}
}

// Register adds sys to its kind's registration-order list.
func (s *Scheduler) Register(sys *matcher.System) {
	s.mu.Lock()
	s.registered[sys.Kind] = append(s.registered[sys.Kind], sys)
	s.mu.Unlock()
}

// Systems returns every system registered under kind, in registration
// order.
func (s *Scheduler) Systems(kind matcher.Kind) []*matcher.System {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*matcher.System, len(s.registered[kind]))
	copy(out, s.registered[kind])
	return out
}

// ActiveSystems returns kind's registered systems, filtered to those
// currently enabled with at least one active table — the world's "phase
// list" membership is this filtered view, recomputed on demand rather than
// maintained as a second list to keep in sync.
func (s *Scheduler) ActiveSystems(kind matcher.Kind) []*matcher.System {
	all := s.Systems(kind)
	out := all[:0:0]
	for _, sys := range all {
		if sys.Enabled && len(sys.ActiveTables) > 0 {
			out = append(out, sys)
		}
	}
	return out
}

// AllSystems returns every registered system across every kind, in no
// particular order. Used when wiring a newly created table against every
// declared system, not just the ones due to run this tick.
func (s *Scheduler) AllSystems() []*matcher.System {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*matcher.System
	for _, list := range s.registered {
		out = append(out, list...)
	}
	return out
}

// RequestQuit marks the world to stop ticking; Progress will return false
// starting with its next call.
func (s *Scheduler) RequestQuit() {
	s.mu.Lock()
	s.quit = true
	s.mu.Unlock()
}

// QuitRequested reports whether RequestQuit has been called.
func (s *Scheduler) QuitRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quit
}

// SystemStats reports a system's accumulated wall-clock time, in seconds,
// when the world measures system time (supplemented from the original's
// 13_system_metadata example).
func SystemStats(sys *matcher.System) (timeSpent float64, activeTables, inactiveTables int) {
	return sys.TimeSpent, len(sys.ActiveTables), len(sys.InactiveTables)
}
