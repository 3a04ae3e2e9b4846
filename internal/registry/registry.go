// Package registry implements the multi-index collection of active Runs
// described in spec.md §4.4: one canonical map keyed by (name, build#),
// plus caches for pid lookup, identity lookup, and two ordered scans.
// Grounded in the original's boost::multi_index RunSet and in this
// project's design-notes guidance to re-architect it as a small struct
// of maps kept consistent at insert/update/remove, rather than a
// generic multi-index container.
package registry

import (
	"sort"
	"sync"

	"github.com/laminarci/laminar/internal/model"
)

// Registry is the active-run set. All methods are safe for concurrent
// use: the scheduler mutates it while holding its own lock, and read-only
// queries (the admin HTTP run listing, metrics scrapes) call in from
// their own goroutines.
type Registry struct {
	mu sync.RWMutex

	byNameBuild map[model.RunID]*model.Run
	byPID       map[int]*model.Run
	byIdentity  map[*model.Run]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byNameBuild: make(map[model.RunID]*model.Run),
		byPID:       make(map[int]*model.Run),
		byIdentity:  make(map[*model.Run]struct{}),
	}
}

// Insert adds a Run to the registry. Called at assignment (spec §4.4).
func (r *Registry) Insert(run *model.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byNameBuild[run.ID()] = run
	r.byIdentity[run] = struct{}{}
	if run.PID != 0 {
		r.byPID[run.PID] = run
	}
}

// Remove deletes a Run from every index. Called at completion.
func (r *Registry) Remove(run *model.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byNameBuild, run.ID())
	delete(r.byIdentity, run)
	if run.PID != 0 {
		delete(r.byPID, run.PID)
	}
}

// BindPID re-keys the pid index when a Run starts a new script. The
// previous pid must already have been vacated (via UnbindPID) at reap
// time before the next fork, matching spec §4.4's re-keying rule.
func (r *Registry) BindPID(run *model.Run, pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.PID = pid
	if pid != 0 {
		r.byPID[pid] = run
	}
}

// UnbindPID vacates the pid index entry for run's current pid, e.g. on
// reap, before the next script forks a new child.
func (r *Registry) UnbindPID(run *model.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run.PID != 0 {
		delete(r.byPID, run.PID)
		run.PID = 0
	}
}

// ByNameBuild looks up a Run by its (name, build#) identity.
func (r *Registry) ByNameBuild(name string, build int) (*model.Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.byNameBuild[model.RunID{Name: name, Build: build}]
	return run, ok
}

// ByPID looks up a Run by the pid of its currently executing child.
// Used by the reap handler.
func (r *Registry) ByPID(pid int) (*model.Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.byPID[pid]
	return run, ok
}

// HasIdentity reports whether the given pointer is a Run currently held
// by the registry, used to deduplicate waiter registrations.
func (r *Registry) HasIdentity(run *model.Run) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byIdentity[run]
	return ok
}

// ByStartedAt returns all active runs ordered by StartedAt ascending,
// for a "recent/running" view.
func (r *Registry) ByStartedAt() []*model.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runs := r.all()
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })
	return runs
}

// ByName returns all active runs ordered by job name, for history
// listing.
func (r *Registry) ByName() []*model.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runs := r.all()
	sort.Slice(runs, func(i, j int) bool { return runs[i].Name < runs[j].Name })
	return runs
}

// Len reports the number of active runs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byNameBuild)
}

func (r *Registry) all() []*model.Run {
	runs := make([]*model.Run, 0, len(r.byNameBuild))
	for _, run := range r.byNameBuild {
		runs = append(runs, run)
	}
	return runs
}
