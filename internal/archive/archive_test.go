package archive

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureCreatesDirectory(t *testing.T) {
	home := t.TempDir()

	dir, err := Ensure(home, "hello", 3)
	require.NoError(t, err)
	require.Equal(t, Dir(home, "hello", 3), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestEnsureWorkspace(t *testing.T) {
	home := t.TempDir()

	dir, err := EnsureWorkspace(home, "hello")
	require.NoError(t, err)
	require.Equal(t, Workspace(home, "hello"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
