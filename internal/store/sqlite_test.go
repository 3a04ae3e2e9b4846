package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/laminarci/laminar/internal/model"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "laminar.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNextBuildNumberGapFreeAndMonotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n1, err := s.NextBuildNumber(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, 1, n1)

	n2, err := s.NextBuildNumber(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, 2, n2)

	// a different job name starts its own independent sequence
	n1b, err := s.NextBuildNumber(ctx, "other")
	require.NoError(t, err)
	require.Equal(t, 1, n1b)
}

func TestNextBuildNumberSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "laminar.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		_, err := s1.NextBuildNumber(ctx, "x")
		require.NoError(t, err)
	}
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	n, err := s2.NextBuildNumber(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, 8, n)
}

func TestRecordBuildIdempotentAndLastResult(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := BuildRecord{
		Name:        "hello",
		Build:       1,
		Node:        "n1",
		QueuedAt:    time.Unix(100, 0),
		StartedAt:   time.Unix(101, 0),
		CompletedAt: time.Unix(110, 0),
		Result:      model.Success,
		Params:      map[string]string{"FOO": "bar"},
	}
	require.NoError(t, s.RecordBuild(ctx, rec, []byte("hi\n")))

	result, err := s.LastResult(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, model.Success, result)

	// Recording again with a different result must not change the
	// stored record (idempotent on name, build#).
	rec2 := rec
	rec2.Result = model.Failed
	require.NoError(t, s.RecordBuild(ctx, rec2, []byte("ignored")))

	result, err = s.LastResult(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, model.Success, result, "first write must win")

	log, err := s.GetLog(ctx, "hello", 1)
	require.NoError(t, err)
	require.Equal(t, "hi\n", string(log))
}

func TestLastResultUnknownWhenNoBuilds(t *testing.T) {
	s := openTestStore(t)
	result, err := s.LastResult(context.Background(), "never-run")
	require.NoError(t, err)
	require.Equal(t, model.Unknown, result)
}

func TestHistoryAndListJobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.RecordBuild(ctx, BuildRecord{
			Name:   "hello",
			Build:  i,
			Result: model.Success,
			Params: map[string]string{},
		}, nil))
	}
	require.NoError(t, s.RecordBuild(ctx, BuildRecord{
		Name: "other", Build: 1, Result: model.Failed, Params: map[string]string{},
	}, nil))

	hist, err := s.History(ctx, "hello", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, 3, hist[0].Build)
	require.Equal(t, 2, hist[1].Build)

	jobs, err := s.ListJobs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"hello", "other"}, jobs)
}
