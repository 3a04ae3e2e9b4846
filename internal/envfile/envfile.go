// Package envfile parses the KEY=VALUE env files referenced by job
// contexts (spec §6 "Env-file syntax"): blank lines and #-comments are
// ignored, and balanced surrounding quotes on a value are stripped.
package envfile

import (
	"fmt"

	"github.com/joho/godotenv"
)

// Parse reads the env file at path and returns its key/value pairs.
// godotenv already implements the exact comment/blank-line/quote-stripping
// rules spec.md calls for.
func Parse(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("parse env file %s: %w", path, err)
	}
	return vars, nil
}

// ParseAll parses a sequence of env files in order and layers them into a
// single map, later files overriding earlier ones — the same ordering
// the process supervisor applies when composing a child's environment.
func ParseAll(paths []string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, p := range paths {
		vars, err := Parse(p)
		if err != nil {
			return nil, err
		}
		for k, v := range vars {
			merged[k] = v
		}
	}
	return merged, nil
}
