package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/laminarci/laminar/internal/envfile"
	"github.com/laminarci/laminar/internal/model"
)

// EnvSpec carries everything the process supervisor needs to compose a
// script's child environment, per spec §4.3.
type EnvSpec struct {
	Home       string
	Job        string
	Build      int
	Node       string
	Result     model.RunState
	LastResult model.RunState
	EnvFiles   []string
	Params     map[string]string
}

// ComposeEnv builds a child process environment in the layering order
// spec.md §4.3 requires: inherited baseline, PATH prefixed with the
// scripts directory, env-file contents, well-known lJobName/lBuildNum/...
// variables, then params that do not already collide with an earlier
// layer.
func ComposeEnv(spec EnvSpec) ([]string, error) {
	vars := baseline()

	scriptsDir := filepath.Join(spec.Home, "cfg", "scripts")
	vars["PATH"] = scriptsDir + string(os.PathListSeparator) + vars["PATH"]

	fileVars, err := envfile.ParseAll(spec.EnvFiles)
	if err != nil {
		return nil, fmt.Errorf("compose env for %s#%d: %w", spec.Job, spec.Build, err)
	}
	for k, v := range fileVars {
		vars[k] = v
	}

	vars["lBuildNum"] = strconv.Itoa(spec.Build)
	vars["lJobName"] = spec.Job
	if spec.Node != "" {
		vars["lNode"] = spec.Node
	}
	vars["lResult"] = spec.Result.String()
	vars["lLastResult"] = spec.LastResult.String()
	vars["lWorkspace"] = filepath.Join(spec.Home, "run", spec.Job, "workspace")
	vars["lArchive"] = filepath.Join(spec.Home, "archive", spec.Job, strconv.Itoa(spec.Build))

	for k, v := range spec.Params {
		if _, exists := vars[k]; !exists {
			vars[k] = v
		}
	}

	return toSlice(vars), nil
}

func baseline() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars
}

func toSlice(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	return out
}
