// Package archive allocates the per-build artifact directory
// (<home>/archive/<job>/<build#>/, spec.md §6) that the lArchive
// environment variable points a script at. Grounded in the original's
// fs::path(laminarHome)/"archive"/name/buildNum construction.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Dir returns the archive directory path for one build, without
// creating it.
func Dir(home, job string, build int) string {
	return filepath.Join(home, "archive", job, strconv.Itoa(build))
}

// Ensure creates the archive directory for one build if it does not
// already exist, returning its path.
func Ensure(home, job string, build int) (string, error) {
	dir := Dir(home, job, build)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create archive dir %s: %w", dir, err)
	}
	return dir, nil
}

// Workspace returns the working directory scripts run in for a job
// (<home>/run/<job>/workspace/, spec.md §6).
func Workspace(home, job string) string {
	return filepath.Join(home, "run", job, "workspace")
}

// EnsureWorkspace creates the job's workspace directory if needed.
func EnsureWorkspace(home, job string) (string, error) {
	dir := Workspace(home, job)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create workspace dir %s: %w", dir, err)
	}
	return dir, nil
}
