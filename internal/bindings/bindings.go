// Package bindings collects placeholder bindings from inline flags, var files
// and environment defaults, and merges them into one binding set for a release.
package bindings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rollout-k8s/rolloutctl/internal/release"
)

// Merge merges several binding sets into one, later sets overriding earlier keys.
func Merge(sets ...release.BindingSet) release.BindingSet {
	out := make(release.BindingSet)
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

// ParseInline parses a comma-separated k=v list (e.g. "A=1,B=2") into a
// binding set. Values stay textual; slot types coerce them at resolve time.
func ParseInline(s string) (release.BindingSet, error) {
	out := make(release.BindingSet)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid inline binding %q, expected key=value: %w", part, release.ErrValidation)
		}
		key := strings.TrimSpace(kv[0])
		if key == "" {
			return nil, fmt.Errorf("empty key in inline binding %q: %w", part, release.ErrValidation)
		}
		out[key] = strings.TrimSpace(kv[1])
	}
	return out, nil
}

// LoadVarFile loads bindings from a file. YAML files keep their typed values;
// anything else is parsed as .env-style key=value lines with string values.
func LoadVarFile(path string) (release.BindingSet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAMLVarFile(path)
	default:
		return loadEnvVarFile(path)
	}
}

// LoadVarFiles loads multiple var files and merges them in order.
func LoadVarFiles(paths []string) (release.BindingSet, error) {
	result := make(release.BindingSet)
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		vars, err := LoadVarFile(path)
		if err != nil {
			return nil, fmt.Errorf("load var-file %q: %w", path, err)
		}
		result = Merge(result, vars)
	}
	return result, nil
}

func loadYAMLVarFile(path string) (release.BindingSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := make(release.BindingSet)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse YAML var-file: %w", err)
	}
	return out, nil
}

func loadEnvVarFile(path string) (release.BindingSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	envMap, err := godotenv.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse env var-file: %w", err)
	}
	out := make(release.BindingSet, len(envMap))
	for k, v := range envMap {
		out[k] = v
	}
	return out, nil
}
