package envfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(contents), 0644))
	return p
}

func TestParseCommentsAndQuotes(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.env", "# a comment\n\nKEY1=plain\nKEY2=\"quoted value\"\nKEY3='single quoted'\n")

	vars, err := Parse(p)
	require.NoError(t, err)
	require.Equal(t, "plain", vars["KEY1"])
	require.Equal(t, "quoted value", vars["KEY2"])
	require.Equal(t, "single quoted", vars["KEY3"])
}

func TestParseAllLaterOverrides(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "context.env", "SHARED=context\nONLY_CONTEXT=1\n")
	second := writeFile(t, dir, "job.env", "SHARED=job\nONLY_JOB=1\n")

	merged, err := ParseAll([]string{first, second})
	require.NoError(t, err)
	require.Equal(t, "job", merged["SHARED"])
	require.Equal(t, "1", merged["ONLY_CONTEXT"])
	require.Equal(t, "1", merged["ONLY_JOB"])
}
