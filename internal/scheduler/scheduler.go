// Package scheduler implements the queue→assign→run→reap→complete
// pipeline described in spec.md §4.1: the pending queue, the node
// table, node/tag admission, the per-run script sequencer, and
// completion handling. It is the core of the engine the rest of the
// repository wires transport and storage around.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/laminarci/laminar/internal/archive"
	"github.com/laminarci/laminar/internal/config"
	"github.com/laminarci/laminar/internal/hub"
	"github.com/laminarci/laminar/internal/logger"
	"github.com/laminarci/laminar/internal/model"
	"github.com/laminarci/laminar/internal/process"
	"github.com/laminarci/laminar/internal/registry"
	"github.com/laminarci/laminar/internal/store"
	"github.com/robfig/cron/v3"
)

// Clock is injectable for deterministic tests, matching the teacher's
// scheduler test pattern of a settable "now" function.
type Clock func() time.Time

// MetricsSink receives lifecycle notifications for the optional
// Prometheus recorder (internal/metrics.Recorder implements this). A nil
// sink is replaced by a no-op at construction time.
type MetricsSink interface {
	JobQueued()
	RunStarted(node string)
	RunCompleted(result string)
}

type noopMetrics struct{}

func (noopMetrics) JobQueued()          {}
func (noopMetrics) RunStarted(string)   {}
func (noopMetrics) RunCompleted(string) {}

type logChunkEvent struct {
	run   *model.Run
	chunk []byte
}

type reapEvent struct {
	run    *model.Run
	status int
}

// Scheduler owns the pending queue, the node table, and the active Run
// registry, and drives every Run through its lifecycle. It is safe for
// concurrent use: CLI/admin callers may call QueueJob, Abort, or
// SetParam from their own goroutines while background goroutines feed
// captured output and exit status through logCh/reapCh.
type Scheduler struct {
	log     logger.Logger
	store   store.Store
	hub     *hub.Hub
	reg     *registry.Registry
	now     Clock
	metrics MetricsSink

	mu       sync.Mutex
	snapshot *config.Snapshot
	nodes    map[string]*model.Node
	pending  []*model.Run
	handles  map[*model.Run]*process.Handle

	cron        *cron.Cron
	cronEntries map[string]cron.EntryID

	logCh  chan logChunkEvent
	reapCh chan reapEvent
}

// New builds a Scheduler from an initial configuration snapshot. Call
// Run in a goroutine to start servicing log/reap events.
func New(snap *config.Snapshot, st store.Store, h *hub.Hub, log logger.Logger) *Scheduler {
	s := &Scheduler{
		log:         log,
		store:       st,
		hub:         h,
		reg:         registry.New(),
		now:         time.Now,
		metrics:     noopMetrics{},
		snapshot:    snap,
		nodes:       cloneNodes(snap.Nodes),
		handles:     make(map[*model.Run]*process.Handle),
		cron:        cron.New(),
		cronEntries: make(map[string]cron.EntryID),
		logCh:       make(chan logChunkEvent, 64),
		reapCh:      make(chan reapEvent, 64),
	}
	s.reconcileCronLocked()
	return s
}

func cloneNodes(in map[string]*model.Node) map[string]*model.Node {
	out := make(map[string]*model.Node, len(in))
	for name, n := range in {
		out[name] = &model.Node{Name: n.Name, NumExecutors: n.NumExecutors, Tags: n.Tags}
	}
	return out
}

// Registry exposes the active-run registry for read paths (status
// queries, admin listings).
func (s *Scheduler) Registry() *registry.Registry { return s.reg }

// SetMetrics installs a MetricsSink, replacing the default no-op. Not
// safe to call concurrently with QueueJob/AssignNewJobs; call it once
// during engine startup before Run begins servicing events.
func (s *Scheduler) SetMetrics(sink MetricsSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sink == nil {
		sink = noopMetrics{}
	}
	s.metrics = sink
}

// NodeStats returns a point-in-time snapshot of every node's executor
// occupancy, for the metrics recorder's scrape-time gauge sampling.
func (s *Scheduler) NodeStats() []NodeStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make([]NodeStat, 0, len(s.nodes))
	for _, n := range s.nodes {
		stats = append(stats, NodeStat{Name: n.Name, BusyExecutors: n.BusyExecutors, NumExecutors: n.NumExecutors})
	}
	return stats
}

// NodeStat is a point-in-time snapshot of one node's executor occupancy.
type NodeStat struct {
	Name          string
	BusyExecutors int
	NumExecutors  int
}

// Run starts the cron dispatcher and services log/reap events until ctx
// is cancelled. It is the "engine loop" of spec.md §4.7, minus the
// client-I/O step: callers reach the scheduler through QueueJob, and
// each running script's pump goroutine feeds captured output and exit
// status in through logCh/reapCh.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	defer s.cron.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.logCh:
			s.onLogChunk(ev.run, ev.chunk)
		case ev := <-s.reapCh:
			s.onReap(ev.run, ev.status)
		}
	}
}

// QueueJob looks up name's configuration, allocates the next build
// number, and enqueues a new pending Run (spec §4.1).
func (s *Scheduler) QueueJob(ctx context.Context, name string, params map[string]string) (*model.Run, error) {
	s.mu.Lock()
	job, ok := s.snapshot.Jobs[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	build, err := s.store.NextBuildNumber(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("allocate build number for %s: %w", name, err)
	}
	lastResult, err := s.store.LastResult(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load last result for %s: %w", name, err)
	}

	run := model.NewRun(name, build, lastResult)
	run.QueuedAt = s.now()
	for _, script := range job.OrderedScripts() {
		run.PushScript(script)
	}
	for _, f := range job.ContextFiles {
		run.PushEnv(f)
	}
	if params != nil {
		for k, v := range params {
			run.Params[k] = v
		}
	}
	run.WorkDir = archive.Workspace(s.snapshot.Home, name)

	s.mu.Lock()
	s.pending = append(s.pending, run)
	s.mu.Unlock()

	s.hub.Publish(hub.Event{Type: hub.EventQueued, Job: name, Build: build, Timestamp: run.QueuedAt})
	s.log.Infof("queued %s#%d", name, build)
	s.metrics.JobQueued()

	s.AssignNewJobs()
	return run, nil
}

// AssignNewJobs scans the pending queue in FIFO order and, for each
// entry, the node table in deterministic order, starting every run for
// which an admissible node is found (spec §4.1).
func (s *Scheduler) AssignNewJobs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignNewJobsLocked()
}

func (s *Scheduler) assignNewJobsLocked() {
	remaining := s.pending[:0:0]
	for _, run := range s.pending {
		node, ok := s.pickNodeLocked(run)
		if !ok {
			remaining = append(remaining, run)
			continue
		}

		node.BusyExecutors++
		run.Node = node.Name
		run.StartedAt = s.now()
		run.State = model.Running
		s.reg.Insert(run)

		s.hub.Publish(hub.Event{Type: hub.EventStarted, Job: run.Name, Build: run.Build, Node: run.Node, Timestamp: run.StartedAt})
		s.log.Infof("started %s#%d on %s", run.Name, run.Build, run.Node)
		s.metrics.RunStarted(run.Node)

		s.stepRunLocked(run)
	}
	s.pending = remaining
}

func (s *Scheduler) pickNodeLocked(run *model.Run) (*model.Node, bool) {
	job := s.snapshot.Jobs[run.Name]
	var jobTags map[string]struct{}
	if job != nil {
		jobTags = job.Tags
	}
	for _, name := range s.snapshot.NodeOrder {
		node := s.nodes[name]
		if node == nil {
			continue
		}
		if s.nodeCanQueue(node, jobTags) {
			return node, true
		}
	}
	return nil, false
}

// nodeCanQueue reports whether node has a free executor and either the
// job is untagged or its tags intersect the node's (spec §4.1).
func (s *Scheduler) nodeCanQueue(node *model.Node, jobTags map[string]struct{}) bool {
	return node.HasCapacity() && node.MatchesTags(jobTags)
}

// stepRunLocked pops the next script (if any) and forks it, or calls
// complete if none remain. Must be called with s.mu held.
func (s *Scheduler) stepRunLocked(run *model.Run) {
	script, ok := run.PopScript()
	if !ok {
		s.completeLocked(run)
		return
	}

	if _, err := archive.EnsureWorkspace(s.snapshot.Home, run.Name); err != nil {
		s.log.Errorf("ensure workspace for %s#%d: %v", run.Name, run.Build, err)
	}
	if _, err := archive.Ensure(s.snapshot.Home, run.Name, run.Build); err != nil {
		s.log.Errorf("ensure archive dir for %s#%d: %v", run.Name, run.Build, err)
	}

	env, err := process.ComposeEnv(process.EnvSpec{
		Home:       s.snapshot.Home,
		Job:        run.Name,
		Build:      run.Build,
		Node:       run.Node,
		Result:     run.Result,
		LastResult: run.LastResult,
		EnvFiles:   run.EnvFiles,
		Params:     run.Params,
	})
	if err != nil {
		s.log.Errorf("compose environment for %s#%d: %v", run.Name, run.Build, err)
		run.ProcStatus = 1
		run.Result = model.Escalate(run.Result, model.Failed)
		s.stepRunLocked(run)
		return
	}

	handle, err := process.Start(context.Background(), script, run.WorkDir, env)
	if err != nil {
		process.LogFailedExec(s.log, script, err)
		msg := []byte(fmt.Sprintf(process.FailedExecMessage, script))
		run.Log = append(run.Log, msg...)
		s.hub.Publish(hub.Event{Type: hub.EventLogChunk, Job: run.Name, Build: run.Build, Chunk: msg, Timestamp: s.now()})
		run.ProcStatus = 1
		run.Result = model.Escalate(run.Result, model.Failed)
		s.stepRunLocked(run)
		return
	}

	s.reg.BindPID(run, handle.PID)
	run.FD = handle.Output
	s.handles[run] = handle

	go s.pump(run, handle)
}

// pump drains a running script's combined output, forwarding chunks to
// the scheduler loop via logCh, then waits for the child to exit and
// reports the result via reapCh. Running on its own goroutine keeps the
// engine loop from ever blocking on child I/O (spec §4.7, §5).
func (s *Scheduler) pump(run *model.Run, handle *process.Handle) {
	buf := make([]byte, 4096)
	for {
		n, err := handle.Output.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.logCh <- logChunkEvent{run: run, chunk: chunk}
		}
		if err != nil {
			if err != io.EOF {
				s.log.Warnf("reading output of %s#%d: %v", run.Name, run.Build, err)
			}
			break
		}
	}
	_ = handle.Output.Close()
	status := handle.Wait()
	s.reapCh <- reapEvent{run: run, status: status}
}

func (s *Scheduler) onLogChunk(run *model.Run, chunk []byte) {
	s.mu.Lock()
	run.Log = append(run.Log, chunk...)
	s.mu.Unlock()

	s.hub.Publish(hub.Event{Type: hub.EventLogChunk, Job: run.Name, Build: run.Build, Chunk: chunk, Timestamp: s.now()})
}

// onReap records a reaped child's exit status and advances the run to
// its next script or to completion (spec §4.1).
func (s *Scheduler) onReap(run *model.Run, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.ProcStatus = status
	if status != 0 {
		run.Result = model.Escalate(run.Result, model.Failed)
	}
	run.FD = nil
	delete(s.handles, run)
	s.reg.UnbindPID(run)

	s.stepRunLocked(run)
}

// completeLocked finalizes a Run's result, frees its node's executor,
// persists the build record, resolves waiters, publishes completed, and
// removes the Run from the registry (spec §4.1).
func (s *Scheduler) completeLocked(run *model.Run) {
	run.State = run.Result

	if run.Node != "" {
		if node, ok := s.nodes[run.Node]; ok && node.BusyExecutors > 0 {
			node.BusyExecutors--
		}
	}

	completedAt := s.now()
	rec := store.BuildRecord{
		Name:        run.Name,
		Build:       run.Build,
		Node:        run.Node,
		QueuedAt:    run.QueuedAt,
		StartedAt:   run.StartedAt,
		CompletedAt: completedAt,
		Result:      run.State,
		Reason:      run.Reason(),
		Params:      run.Params,
	}
	if err := s.store.RecordBuild(context.Background(), rec, run.Log); err != nil {
		// StorePersistenceError: logged, never propagated. The build
		// number was already consumed at allocation time regardless.
		s.log.Errorf("persist build record for %s#%d: %v", run.Name, run.Build, err)
	}

	s.hub.Resolve(run)
	s.hub.Publish(hub.Event{Type: hub.EventCompleted, Job: run.Name, Build: run.Build, Node: run.Node, State: run.State, Timestamp: completedAt})
	s.log.Infof("completed %s#%d: %s", run.Name, run.Build, run.State)
	s.metrics.RunCompleted(run.State.String())

	s.reg.Remove(run)
	s.assignNewJobsLocked()
}

// abortGrace is how long Abort waits after SIGTERM before escalating to
// SIGKILL, matching the teacher's shutdown grace period convention.
const abortGrace = 10 * time.Second

// Abort terminates the run's current child (if any) and drives it to
// the Aborted terminal state (SPEC_FULL.md §D.2). If no script is
// currently executing, the Run aborts the moment its current step
// finishes, since there is nothing to signal. If the process group
// ignores SIGTERM, it is sent SIGKILL after abortGrace.
func (s *Scheduler) Abort(name string, build int) error {
	s.mu.Lock()
	run, ok := s.reg.ByNameBuild(name, build)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s#%d", ErrRunNotFound, name, build)
	}
	run.Result = model.Aborted
	run.ScriptsRemaining = nil
	handle := s.handles[run]
	s.mu.Unlock()

	if handle == nil {
		return nil
	}
	if err := handle.Signal(syscall.SIGTERM); err != nil {
		return err
	}

	go func() {
		time.Sleep(abortGrace)
		s.mu.Lock()
		stillRunning := s.handles[run] == handle
		s.mu.Unlock()
		if stillRunning {
			if err := handle.Signal(syscall.SIGKILL); err != nil {
				s.log.Warnf("SIGKILL %s#%d: %v", run.Name, run.Build, err)
			}
		}
	}()
	return nil
}

// SetParam mutates a live Run's params map. It is a no-op (returns
// false) if the run is not currently active, per SPEC_FULL.md §D.4.
func (s *Scheduler) SetParam(name string, build int, key, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.reg.ByNameBuild(name, build)
	if !ok {
		return false
	}
	run.Params[key] = value
	return true
}

// WaitForRun registers a waiter for (name, build#)'s final state. If the
// Run is active, it resolves through the hub; if it already completed
// (or never existed in memory, e.g. after a restart), it resolves
// immediately from the persisted record (spec §4.5, §4.6).
func (s *Scheduler) WaitForRun(ctx context.Context, name string, build int) (<-chan model.RunState, error) {
	s.mu.Lock()
	run, ok := s.reg.ByNameBuild(name, build)
	s.mu.Unlock()
	if ok {
		return s.hub.Wait(run), nil
	}

	records, err := s.store.History(ctx, name, 1<<20)
	if err != nil {
		return nil, fmt.Errorf("wait for %s#%d: %w", name, build, err)
	}
	for _, rec := range records {
		if rec.Build == build {
			ch := make(chan model.RunState, 1)
			ch <- rec.Result
			close(ch)
			return ch, nil
		}
	}
	return nil, fmt.Errorf("%w: %s#%d", ErrRunNotFound, name, build)
}

// ApplyConfig swaps in a newly loaded configuration snapshot, preserving
// the busy-executor counts of nodes that still exist, and reconciling
// cron triggers against the new job set.
func (s *Scheduler) ApplyConfig(snap *config.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newNodes := make(map[string]*model.Node, len(snap.Nodes))
	for name, n := range snap.Nodes {
		busy := 0
		if old, ok := s.nodes[name]; ok {
			busy = old.BusyExecutors
		}
		newNodes[name] = &model.Node{Name: name, NumExecutors: n.NumExecutors, BusyExecutors: busy, Tags: n.Tags}
	}

	s.snapshot = snap
	s.nodes = newNodes
	s.reconcileCronLocked()
	s.assignNewJobsLocked()
}

func (s *Scheduler) reconcileCronLocked() {
	for name, id := range s.cronEntries {
		job, ok := s.snapshot.Jobs[name]
		if !ok || job.Cron == "" {
			s.cron.Remove(id)
			delete(s.cronEntries, name)
		}
	}
	for name, job := range s.snapshot.Jobs {
		if job.Cron == "" {
			continue
		}
		if _, exists := s.cronEntries[name]; exists {
			continue
		}
		jobName := name
		id, err := s.cron.AddFunc(job.Cron, func() {
			if _, err := s.QueueJob(context.Background(), jobName, nil); err != nil {
				s.log.Warnf("cron trigger for %s: %v", jobName, err)
			}
		})
		if err != nil {
			s.log.Warnf("invalid cron expression %q for job %s: %v", job.Cron, jobName, err)
			continue
		}
		s.cronEntries[name] = id
	}
}
