// Package hub implements the subscription/notification fan-out
// described in spec.md §4.5: dashboard, job, and log-follower
// subscribers receive lifecycle events for the runs they care about, and
// waiters receive a one-shot notification of a run's final state. The
// publish side never blocks the engine loop: slow subscribers are
// disconnected rather than allowed to stall delivery, adapting the
// buffered-channel-plus-disconnect pattern from the teacher's generic
// SubPub (internal/agent/subpub.go).
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/laminarci/laminar/internal/model"
)

// EventType is the wire-level event kind published by the scheduler.
type EventType string

const (
	EventQueued    EventType = "queued"
	EventStarted   EventType = "started"
	EventLogChunk  EventType = "log"
	EventCompleted EventType = "completed"
)

// Event is one transport-neutral lifecycle notification (spec §6
// "Status wire events").
type Event struct {
	Type      EventType
	Job       string
	Build     int
	Node      string
	State     model.RunState
	Chunk     []byte
	Timestamp time.Time
}

// Scope restricts a subscriber to a subset of events.
type Scope int

const (
	// ScopeDashboard receives every event for every run.
	ScopeDashboard Scope = iota
	// ScopeJob receives events for a single job name, all builds.
	ScopeJob
	// ScopeRun receives events for a single (job, build).
	ScopeRun
)

// bufferWatermark bounds each subscriber's outgoing queue. A subscriber
// that cannot keep up is disconnected rather than allowed to back up the
// publishing side (spec §4.5).
const bufferWatermark = 256

// Subscription is returned by Hub.Subscribe. Events arrives on a channel
// that is closed when the subscriber is disconnected, either by
// Unsubscribe or because of buffer overflow.
type Subscription struct {
	ID     uuid.UUID
	Events <-chan Event
}

type subscriber struct {
	id    uuid.UUID
	scope Scope
	job   string
	build int
	ch    chan Event
}

// Hub tracks connected subscribers and pending waiters.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]*subscriber
	waiters     map[model.RunID][]chan model.RunState
	onOverflow  func(id uuid.UUID)
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[uuid.UUID]*subscriber),
		waiters:     make(map[model.RunID][]chan model.RunState),
	}
}

// OnOverflow registers a callback invoked when a subscriber is
// disconnected for falling behind (spec §7 ClientOverflow), e.g. for
// logging or a metrics counter. Optional.
func (h *Hub) OnOverflow(fn func(id uuid.UUID)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onOverflow = fn
}

// Subscribe registers a new subscriber in the given scope. For
// ScopeJob, job must be set; for ScopeRun, job and build must be set.
func (h *Hub) Subscribe(scope Scope, job string, build int) Subscription {
	sub := &subscriber{
		id:    uuid.New(),
		scope: scope,
		job:   job,
		build: build,
		ch:    make(chan Event, bufferWatermark),
	}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	h.mu.Unlock()

	return Subscription{ID: sub.id, Events: sub.ch}
}

// Unsubscribe disconnects a subscriber and closes its event channel. It
// is the caller's responsibility to stop reading from Events afterwards.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *Hub) removeLocked(id uuid.UUID) {
	sub, ok := h.subscribers[id]
	if !ok {
		return
	}
	delete(h.subscribers, id)
	close(sub.ch)
}

// Publish delivers ev to every subscriber whose scope matches. Delivery
// is non-blocking: a subscriber whose buffer is full is disconnected.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subscribers {
		if !matches(sub, ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.removeLocked(id)
			if h.onOverflow != nil {
				h.onOverflow(id)
			}
		}
	}
}

func matches(sub *subscriber, ev Event) bool {
	switch sub.scope {
	case ScopeDashboard:
		return true
	case ScopeJob:
		return sub.job == ev.Job
	case ScopeRun:
		return sub.job == ev.Job && sub.build == ev.Build
	default:
		return false
	}
}

// Wait registers a one-shot waiter for run's final state. If run is
// already complete, the returned channel is pre-filled so the caller
// resolves immediately without blocking, satisfying spec §4.5's
// "registering after completion resolves immediately" rule for runs
// still held in memory. Waiters for the same run are resolved in
// registration order by Resolve.
func (h *Hub) Wait(run *model.Run) <-chan model.RunState {
	ch := make(chan model.RunState, 1)

	h.mu.Lock()
	if run.Complete() {
		h.mu.Unlock()
		ch <- run.State
		close(ch)
		return ch
	}
	h.waiters[run.ID()] = append(h.waiters[run.ID()], ch)
	h.mu.Unlock()
	return ch
}

// Resolve fulfills every waiter registered for run's identity with its
// final state, in registration order, then forgets them. Called once by
// the scheduler's complete() handler.
func (h *Hub) Resolve(run *model.Run) {
	h.mu.Lock()
	waiters := h.waiters[run.ID()]
	delete(h.waiters, run.ID())
	h.mu.Unlock()

	for _, ch := range waiters {
		ch <- run.State
		close(ch)
	}
}

// SubscriberCount reports the number of live subscribers, for the
// dashboard summary snapshot.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
