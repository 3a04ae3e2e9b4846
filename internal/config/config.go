// Package config loads job, node, and context definitions from the
// <home>/cfg/ filesystem layout (spec.md §6) into an immutable Snapshot.
// Loading never mutates a previous snapshot in place: a reload produces
// a brand-new Snapshot that the caller swaps in, per spec.md §2's
// "immutable configuration snapshots" requirement.
package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/laminarci/laminar/internal/envfile"
	"github.com/laminarci/laminar/internal/model"
)

// Snapshot is one immutable, fully-resolved configuration: every job and
// node definition found under <home>/cfg at load time.
type Snapshot struct {
	Home  string
	Jobs  map[string]*model.JobConfig
	Nodes map[string]*model.Node
	// NodeOrder is the stable, deterministic scan order assignNewJobs
	// uses (spec §4.1): lexical by node name.
	NodeOrder []string
}

// Load reads the full cfg tree rooted at home and returns a new Snapshot.
func Load(home string) (*Snapshot, error) {
	cfgFS := os.DirFS(home)

	jobs, err := loadJobs(cfgFS, home)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	nodes, order, err := loadNodes(cfgFS, home)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}

	return &Snapshot{Home: home, Jobs: jobs, Nodes: nodes, NodeOrder: order}, nil
}

func loadJobs(cfgFS fs.FS, home string) (map[string]*model.JobConfig, error) {
	matches, err := doublestar.Glob(cfgFS, "cfg/jobs/*.run")
	if err != nil {
		return nil, fmt.Errorf("glob job scripts: %w", err)
	}

	jobs := make(map[string]*model.JobConfig, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".run")
		job := &model.JobConfig{
			Name:       name,
			MainScript: filepath.Join(home, m),
		}

		if p := filepath.Join(home, "cfg", "jobs", name+".before"); fileExists(p) {
			job.BeforeScripts = []string{p}
		}
		if p := filepath.Join(home, "cfg", "jobs", name+".after"); fileExists(p) {
			job.AfterScripts = []string{p}
		}

		confPath := filepath.Join(home, "cfg", "jobs", name+".conf")
		tags := map[string]struct{}{}
		var contextFiles []string
		if fileExists(confPath) {
			vars, err := envfile.Parse(confPath)
			if err != nil {
				return nil, fmt.Errorf("parse job conf %s: %w", confPath, err)
			}
			tags = parseTagSet(vars["TAGS"])
			for _, ctx := range splitCommaList(vars["CONTEXTS"]) {
				contextFiles = append(contextFiles, filepath.Join(home, "cfg", "contexts", ctx+".env"))
			}
		}
		job.Tags = tags

		cronPath := filepath.Join(home, "cfg", "jobs", name+".cron")
		if fileExists(cronPath) {
			data, err := os.ReadFile(cronPath)
			if err != nil {
				return nil, fmt.Errorf("read cron file %s: %w", cronPath, err)
			}
			job.Cron = strings.TrimSpace(string(data))
		}

		if envPath := filepath.Join(home, "cfg", "jobs", name+".env"); fileExists(envPath) {
			contextFiles = append(contextFiles, envPath)
		}
		job.ContextFiles = contextFiles

		jobs[name] = job
	}
	return jobs, nil
}

func loadNodes(cfgFS fs.FS, home string) (map[string]*model.Node, []string, error) {
	matches, err := doublestar.Glob(cfgFS, "cfg/nodes/*.conf")
	if err != nil {
		return nil, nil, fmt.Errorf("glob node configs: %w", err)
	}

	nodes := make(map[string]*model.Node, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".conf")
		vars, err := envfile.Parse(filepath.Join(home, m))
		if err != nil {
			return nil, nil, fmt.Errorf("parse node conf %s: %w", m, err)
		}

		executors, err := strconv.Atoi(strings.TrimSpace(vars["EXECUTORS"]))
		if err != nil {
			return nil, nil, fmt.Errorf("node %s: invalid EXECUTORS %q: %w", name, vars["EXECUTORS"], err)
		}

		nodes[name] = &model.Node{
			Name:         name,
			NumExecutors: executors,
			Tags:         parseTagSet(vars["TAGS"]),
		}
		names = append(names, name)
	}

	// Deterministic scan order: lexical by name, matching spec §4.1's
	// "configured sort" requirement for assignNewJobs.
	sort.Strings(names)
	return nodes, names, nil
}

func parseTagSet(raw string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range splitCommaList(raw) {
		set[t] = struct{}{}
	}
	return set
}

func splitCommaList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
