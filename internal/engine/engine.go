// Package engine wires configuration loading, the persistent store, the
// event hub, and the scheduler into a single runnable server, and
// implements the top-level start/stop lifecycle described in spec.md
// §4.7: reload on configuration change, and a bounded grace period on
// shutdown during which active runs are given a chance to finish on
// their own before the scheduler loop is stopped.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/laminarci/laminar/internal/config"
	"github.com/laminarci/laminar/internal/hub"
	"github.com/laminarci/laminar/internal/logger"
	"github.com/laminarci/laminar/internal/metrics"
	"github.com/laminarci/laminar/internal/scheduler"
	"github.com/laminarci/laminar/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

// Options configures a new Engine.
type Options struct {
	Home        string
	Store       store.Store
	Log         logger.Logger
	GracePeriod time.Duration
	// PollInterval controls how often shutdown checks whether active runs
	// have drained during the grace period. Defaults to 100ms if zero.
	PollInterval time.Duration
	WatchConfig  bool
	Version      string
}

// Engine owns the scheduler, the config watcher, and the hub, and
// coordinates their lifecycle.
type Engine struct {
	home     string
	log      logger.Logger
	store    store.Store
	hub      *hub.Hub
	sched    *scheduler.Scheduler
	recorder *metrics.Recorder
	watcher  *config.Watcher

	gracePeriod  time.Duration
	pollInterval time.Duration
}

// New loads the initial configuration snapshot from home, constructs the
// scheduler, and optionally starts a filesystem watcher for reloads.
func New(opts Options) (*Engine, error) {
	snap, err := config.Load(opts.Home)
	if err != nil {
		return nil, fmt.Errorf("load initial configuration: %w", err)
	}

	h := hub.New()
	h.OnOverflow(func(id uuid.UUID) {
		opts.Log.Warnf("subscriber %s disconnected: too slow", id)
	})
	sched := scheduler.New(snap, opts.Store, h, opts.Log)

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}

	e := &Engine{
		home:         opts.Home,
		log:          opts.Log,
		store:        opts.Store,
		hub:          h,
		sched:        sched,
		gracePeriod:  opts.GracePeriod,
		pollInterval: pollInterval,
	}

	e.recorder = metrics.NewRecorder(opts.Version, sched.Registry(), func() []metrics.NodeStat {
		stats := sched.NodeStats()
		out := make([]metrics.NodeStat, len(stats))
		for i, s := range stats {
			out[i] = metrics.NodeStat{Name: s.Name, BusyExecutors: s.BusyExecutors, NumExecutors: s.NumExecutors}
		}
		return out
	})
	sched.SetMetrics(e.recorder)

	if opts.WatchConfig {
		w, err := config.NewWatcher(opts.Home, opts.Log)
		if err != nil {
			return nil, fmt.Errorf("start config watcher: %w", err)
		}
		e.watcher = w
	}

	return e, nil
}

// Scheduler returns the underlying scheduler, for transport layers
// (CLI, admin HTTP) to queue jobs and query state through.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.sched }

// Hub returns the event hub, for transport layers to subscribe through.
func (e *Engine) Hub() *hub.Hub { return e.hub }

// MetricsRegistry returns the Prometheus registry the admin HTTP server
// scrapes.
func (e *Engine) MetricsRegistry() *prometheus.Registry { return e.recorder.Registry() }

// Run drives the scheduler's event loop and, if a watcher is active,
// reloads configuration whenever the watcher signals a change. It
// blocks until ctx is cancelled, then waits up to the configured grace
// period for the active-run registry to empty before stopping the
// scheduler loop and returning. Shutdown does not make the scheduler
// refuse QueueJob calls or clear its pending queue: a pending run that
// gets a free executor during the grace period still starts. Pending
// runs still waiting when the loop stops are never started; they live
// only in memory and are not persisted.
func (e *Engine) Run(ctx context.Context) error {
	schedCtx, cancelSched := context.WithCancel(context.Background())
	defer cancelSched()

	done := make(chan struct{})
	go func() {
		e.sched.Run(schedCtx)
		close(done)
	}()

	if e.watcher != nil {
		defer e.watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return e.shutdown(cancelSched, done)
			case <-e.watcher.Reload():
				snap, err := config.Load(e.home)
				if err != nil {
					e.log.Errorf("reload configuration: %v", err)
					continue
				}
				e.sched.ApplyConfig(snap)
				e.log.Infof("configuration reloaded")
			}
		}
	}

	<-ctx.Done()
	return e.shutdown(cancelSched, done)
}

func (e *Engine) shutdown(cancelSched context.CancelFunc, done <-chan struct{}) error {
	e.log.Infof("shutting down, waiting up to %s for active runs", e.gracePeriod)
	timer := time.NewTimer(e.gracePeriod)
	defer timer.Stop()

	select {
	case <-timer.C:
		e.log.Warnf("grace period elapsed, stopping engine loop with runs still active")
	case <-e.allRunsIdle():
	}

	cancelSched()
	<-done
	return nil
}

// allRunsIdle returns a channel that closes once the registry reports no
// active runs, polled at a short interval since the registry has no
// native "became empty" notification.
func (e *Engine) allRunsIdle() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		ticker := time.NewTicker(e.pollInterval)
		defer ticker.Stop()
		for range ticker.C {
			if e.sched.Registry().Len() == 0 {
				return
			}
		}
	}()
	return ch
}
