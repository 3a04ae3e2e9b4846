// Package model defines the core data types of the job lifecycle engine:
// run state, the Run itself, node definitions, and job configuration.
package model

import (
	"fmt"
	"os"
	"time"
)

// RunState is the lifecycle state of a Run, and also the severity scale
// used to escalate the cumulative result of a multi-script run.
type RunState int

const (
	Unknown RunState = iota
	Pending
	Running
	Aborted
	Failed
	Success
)

// severity orders RunState by how "bad" it is so that a cumulative result
// can only move towards a worse outcome during a run's lifetime: Success
// is the best outcome, Aborted the worst.
var severity = map[RunState]int{
	Unknown: -1,
	Pending: -1,
	Running: -1,
	Success: 0,
	Failed:  1,
	Aborted: 2,
}

// Escalate returns the more severe of two results, leaving non-terminal
// states untouched. It is used to fold a script's exit status into a
// Run's cumulative result without ever lowering severity.
func Escalate(current, candidate RunState) RunState {
	if _, ok := severity[current]; !ok {
		return candidate
	}
	if _, ok := severity[candidate]; !ok {
		return current
	}
	if severity[candidate] > severity[current] {
		return candidate
	}
	return current
}

func (s RunState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	case Success:
		return "success"
	default:
		return "unknown"
	}
}

// ParseRunState is the inverse of String, used when reading persisted
// records back out of the store.
func ParseRunState(s string) RunState {
	switch s {
	case "pending":
		return Pending
	case "running":
		return Running
	case "aborted":
		return Aborted
	case "failed":
		return Failed
	case "success":
		return Success
	default:
		return Unknown
	}
}

// RunID identifies a Run by job name and build number.
type RunID struct {
	Name  string
	Build int
}

func (id RunID) String() string {
	return fmt.Sprintf("%s#%d", id.Name, id.Build)
}

// Run is the mutable state of one job execution. A Run is never copied;
// all holders share the same pointer so that mutations made by the
// scheduler are visible everywhere the Run is referenced.
type Run struct {
	Name  string
	Build int

	State      RunState
	Result     RunState
	LastResult RunState

	Node    string
	WorkDir string

	ScriptsRemaining []string
	CurrentScript    string
	EnvFiles         []string
	Params           map[string]string

	PID        int
	FD         *os.File
	ProcStatus int

	Log []byte

	QueuedAt   time.Time
	StartedAt  time.Time
	ReasonMsg  string
	ParentName string
	ParentBuild int
}

// NewRun constructs a freshly-queued Run. It does not assign a node or a
// start time; those are set by the scheduler on assignment.
func NewRun(name string, build int, lastResult RunState) *Run {
	return &Run{
		Name:       name,
		Build:      build,
		State:      Pending,
		Result:     Success,
		LastResult: lastResult,
		Params:     make(map[string]string),
	}
}

// ID returns the Run's (name, build#) identity.
func (r *Run) ID() RunID {
	return RunID{Name: r.Name, Build: r.Build}
}

// Reason returns the human-visible trigger description: an upstream
// reference if this Run was triggered by another job's completion,
// otherwise the stored reason message (which may be empty).
func (r *Run) Reason() string {
	if r.ParentName != "" {
		return fmt.Sprintf("Triggered by upstream %s #%d", r.ParentName, r.ParentBuild)
	}
	return r.ReasonMsg
}

// PushScript appends a script path to the ordered queue of scripts still
// to be executed for this run.
func (r *Run) PushScript(path string) {
	r.ScriptsRemaining = append(r.ScriptsRemaining, path)
}

// PushEnv appends an env-file reference to be layered into the child
// environment of every script in this run.
func (r *Run) PushEnv(path string) {
	r.EnvFiles = append(r.EnvFiles, path)
}

// PopScript removes and returns the next script to run, or ("", false) if
// none remain.
func (r *Run) PopScript() (string, bool) {
	if len(r.ScriptsRemaining) == 0 {
		return "", false
	}
	script := r.ScriptsRemaining[0]
	r.ScriptsRemaining = r.ScriptsRemaining[1:]
	r.CurrentScript = script
	return script, true
}

// Complete reports whether the Run has reached a terminal state.
func (r *Run) Complete() bool {
	switch r.State {
	case Aborted, Failed, Success:
		return true
	default:
		return false
	}
}

// Node is a logical executor pool: a named set of identical execution
// slots restricted to jobs whose tag set intersects (or is empty, meaning
// untagged jobs may run anywhere).
type Node struct {
	Name          string
	NumExecutors  int
	BusyExecutors int
	Tags          map[string]struct{}
}

// HasCapacity reports whether the node has at least one free executor.
func (n *Node) HasCapacity() bool {
	return n.BusyExecutors < n.NumExecutors
}

// MatchesTags reports whether this node may run a job with the given tag
// set: true if the job is untagged, or if the tag sets intersect.
func (n *Node) MatchesTags(jobTags map[string]struct{}) bool {
	if len(jobTags) == 0 {
		return true
	}
	for t := range jobTags {
		if _, ok := n.Tags[t]; ok {
			return true
		}
	}
	return false
}

// JobConfig is a job's static configuration: its ordered scripts, the
// tags restricting which nodes may run it, and the env-file context
// layered into every run.
type JobConfig struct {
	Name          string
	BeforeScripts []string
	MainScript    string
	AfterScripts  []string
	Tags          map[string]struct{}
	ContextFiles  []string
	Cron          string // optional cron expression, empty if unscheduled
}

// OrderedScripts returns the before/main/after scripts in execution
// order, as queueJob lays them into a new Run's ScriptsRemaining.
func (j *JobConfig) OrderedScripts() []string {
	scripts := make([]string, 0, len(j.BeforeScripts)+1+len(j.AfterScripts))
	scripts = append(scripts, j.BeforeScripts...)
	if j.MainScript != "" {
		scripts = append(scripts, j.MainScript)
	}
	scripts = append(scripts, j.AfterScripts...)
	return scripts
}
