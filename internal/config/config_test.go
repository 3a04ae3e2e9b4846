package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mkHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	for _, dir := range []string{"cfg/jobs", "cfg/nodes", "cfg/contexts", "cfg/scripts"} {
		require.NoError(t, os.MkdirAll(filepath.Join(home, dir), 0755))
	}
	return home
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0755))
}

func TestLoadJobsAndNodes(t *testing.T) {
	home := mkHome(t)

	writeFile(t, filepath.Join(home, "cfg/jobs/hello.run"), "#!/bin/sh\necho hi\n")
	writeFile(t, filepath.Join(home, "cfg/jobs/hello.before"), "#!/bin/sh\necho before\n")
	writeFile(t, filepath.Join(home, "cfg/jobs/hello.after"), "#!/bin/sh\necho after\n")
	writeFile(t, filepath.Join(home, "cfg/jobs/hello.conf"), "TAGS=linux,docker\nCONTEXTS=shared\n")
	writeFile(t, filepath.Join(home, "cfg/jobs/hello.env"), "JOB_SPECIFIC=1\n")
	writeFile(t, filepath.Join(home, "cfg/contexts/shared.env"), "SHARED_VAR=1\n")

	writeFile(t, filepath.Join(home, "cfg/nodes/n1.conf"), "EXECUTORS=2\nTAGS=linux\n")
	writeFile(t, filepath.Join(home, "cfg/nodes/n0.conf"), "EXECUTORS=1\nTAGS=\n")

	snap, err := Load(home)
	require.NoError(t, err)

	job, ok := snap.Jobs["hello"]
	require.True(t, ok)
	require.Equal(t, filepath.Join(home, "cfg/jobs/hello.run"), job.MainScript)
	require.Equal(t, []string{filepath.Join(home, "cfg/jobs/hello.before")}, job.BeforeScripts)
	require.Equal(t, []string{filepath.Join(home, "cfg/jobs/hello.after")}, job.AfterScripts)
	_, hasLinux := job.Tags["linux"]
	require.True(t, hasLinux)
	_, hasDocker := job.Tags["docker"]
	require.True(t, hasDocker)
	require.Equal(t, []string{
		filepath.Join(home, "cfg/contexts/shared.env"),
		filepath.Join(home, "cfg/jobs/hello.env"),
	}, job.ContextFiles)

	require.Equal(t, []string{"n0", "n1"}, snap.NodeOrder, "node scan order must be deterministic (lexical)")

	n1 := snap.Nodes["n1"]
	require.Equal(t, 2, n1.NumExecutors)
	_, hasTag := n1.Tags["linux"]
	require.True(t, hasTag)

	n0 := snap.Nodes["n0"]
	require.Equal(t, 1, n0.NumExecutors)
	require.Empty(t, n0.Tags)
}

func TestLoadJobWithCron(t *testing.T) {
	home := mkHome(t)
	writeFile(t, filepath.Join(home, "cfg/jobs/nightly.run"), "#!/bin/sh\necho hi\n")
	writeFile(t, filepath.Join(home, "cfg/jobs/nightly.cron"), "0 2 * * *\n")

	snap, err := Load(home)
	require.NoError(t, err)
	require.Equal(t, "0 2 * * *", snap.Jobs["nightly"].Cron)
}

func TestLoadNoOptionalFiles(t *testing.T) {
	home := mkHome(t)
	writeFile(t, filepath.Join(home, "cfg/jobs/minimal.run"), "#!/bin/sh\ntrue\n")

	snap, err := Load(home)
	require.NoError(t, err)

	job := snap.Jobs["minimal"]
	require.Empty(t, job.BeforeScripts)
	require.Empty(t, job.AfterScripts)
	require.Empty(t, job.Tags)
	require.Empty(t, job.ContextFiles)
	require.Empty(t, job.Cron)
}
