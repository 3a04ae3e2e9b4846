package registry

import (
	"testing"
	"time"

	"github.com/laminarci/laminar/internal/model"
	"github.com/stretchr/testify/require"
)

func TestInsertLookupRemove(t *testing.T) {
	reg := New()
	run := model.NewRun("hello", 1, model.Unknown)
	run.PID = 100

	reg.Insert(run)
	require.Equal(t, 1, reg.Len())

	got, ok := reg.ByNameBuild("hello", 1)
	require.True(t, ok)
	require.Same(t, run, got)

	got, ok = reg.ByPID(100)
	require.True(t, ok)
	require.Same(t, run, got)

	require.True(t, reg.HasIdentity(run))

	reg.Remove(run)
	require.Equal(t, 0, reg.Len())
	_, ok = reg.ByNameBuild("hello", 1)
	require.False(t, ok)
	_, ok = reg.ByPID(100)
	require.False(t, ok)
	require.False(t, reg.HasIdentity(run))
}

func TestPIDRekeying(t *testing.T) {
	reg := New()
	run := model.NewRun("hello", 1, model.Unknown)
	reg.Insert(run)

	reg.BindPID(run, 200)
	got, ok := reg.ByPID(200)
	require.True(t, ok)
	require.Same(t, run, got)

	reg.UnbindPID(run)
	_, ok = reg.ByPID(200)
	require.False(t, ok)
	require.Equal(t, 0, run.PID)

	reg.BindPID(run, 201)
	got, ok = reg.ByPID(201)
	require.True(t, ok)
	require.Same(t, run, got)
	_, ok = reg.ByPID(200)
	require.False(t, ok)
}

func TestOrderedScans(t *testing.T) {
	reg := New()
	now := time.Now()

	a := model.NewRun("b-job", 1, model.Unknown)
	a.StartedAt = now.Add(2 * time.Second)
	b := model.NewRun("a-job", 1, model.Unknown)
	b.StartedAt = now

	reg.Insert(a)
	reg.Insert(b)

	byStart := reg.ByStartedAt()
	require.Equal(t, []*model.Run{b, a}, byStart)

	byName := reg.ByName()
	require.Equal(t, []*model.Run{b, a}, byName)
}
