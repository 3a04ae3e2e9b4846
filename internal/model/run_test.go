package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscalateMonotonic(t *testing.T) {
	r := Success
	r = Escalate(r, Success)
	require.Equal(t, Success, r)

	r = Escalate(r, Failed)
	require.Equal(t, Failed, r)

	// Aborted can still escalate over Failed.
	r = Escalate(r, Aborted)
	require.Equal(t, Aborted, r)

	// Success may never lower severity once escalated.
	r = Escalate(r, Success)
	require.Equal(t, Aborted, r)
}

func TestRunStateStringRoundTrip(t *testing.T) {
	for _, s := range []RunState{Unknown, Pending, Running, Aborted, Failed, Success} {
		require.Equal(t, s, ParseRunState(s.String()))
	}
}

func TestRunPushPopScript(t *testing.T) {
	r := NewRun("hello", 1, Unknown)
	r.PushScript("/cfg/jobs/hello.before")
	r.PushScript("/cfg/jobs/hello.run")

	script, ok := r.PopScript()
	require.True(t, ok)
	require.Equal(t, "/cfg/jobs/hello.before", script)
	require.Equal(t, script, r.CurrentScript)

	script, ok = r.PopScript()
	require.True(t, ok)
	require.Equal(t, "/cfg/jobs/hello.run", script)

	_, ok = r.PopScript()
	require.False(t, ok)
}

func TestRunReason(t *testing.T) {
	r := NewRun("downstream", 2, Unknown)
	r.ReasonMsg = "manual"
	require.Equal(t, "manual", r.Reason())

	r.ParentName = "upstream"
	r.ParentBuild = 7
	require.Equal(t, "Triggered by upstream upstream #7", r.Reason())
}

func TestNodeCapacityAndTags(t *testing.T) {
	n := &Node{Name: "n1", NumExecutors: 1, Tags: map[string]struct{}{"linux": {}}}
	require.True(t, n.HasCapacity())
	require.True(t, n.MatchesTags(nil))
	require.True(t, n.MatchesTags(map[string]struct{}{"linux": {}}))
	require.False(t, n.MatchesTags(map[string]struct{}{"gpu": {}}))

	n.BusyExecutors = 1
	require.False(t, n.HasCapacity())
}

func TestJobConfigOrderedScripts(t *testing.T) {
	j := &JobConfig{
		Name:          "flaky",
		BeforeScripts: []string{"/cfg/jobs/flaky.before"},
		MainScript:    "/cfg/jobs/flaky.run",
		AfterScripts:  []string{"/cfg/jobs/flaky.after"},
	}
	require.Equal(t, []string{
		"/cfg/jobs/flaky.before",
		"/cfg/jobs/flaky.run",
		"/cfg/jobs/flaky.after",
	}, j.OrderedScripts())
}
