// Package config contains the loader and strongly typed model for rollout.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rollout-k8s/rolloutctl/internal/release"
)

// Config describes a deployable project: its templates, target environments
// and executor tuning. It mirrors the structure of rollout.yaml.
type Config struct {
	// Project is the short project name used in logs and defaults.
	Project string `yaml:"project"`
	// Templates lists template YAML files, resolved relative to rollout.yaml.
	Templates []string `yaml:"templates"`
	// LedgerPath is the SQLite ledger location. Defaults to
	// rollout.ledger.db next to the config file.
	LedgerPath string `yaml:"ledgerPath,omitempty"`
	// Image describes the build/push capability for the build command.
	Image ImageSpec `yaml:"image,omitempty"`
	// Environments contains per-environment cluster settings and defaults.
	Environments map[string]Environment `yaml:"environments"`
	// Executor tunes retry and timeout behavior around cluster calls.
	Executor ExecutorConfig `yaml:"executor,omitempty"`
}

// ImageSpec describes how to build the application image.
type ImageSpec struct {
	// Repository is the image repository (e.g. "registry.local/app").
	Repository string `yaml:"repository"`
	// Dockerfile overrides the Dockerfile path within the build context.
	Dockerfile string `yaml:"dockerfile,omitempty"`
}

// Environment holds cluster access settings and default bindings for one
// target environment.
type Environment struct {
	// Namespace is the target namespace.
	Namespace string `yaml:"namespace,omitempty"`
	// Kubeconfig is the kubeconfig path for this environment.
	Kubeconfig string `yaml:"kubeconfig,omitempty"`
	// Context is the kube context name.
	Context string `yaml:"context,omitempty"`
	// Bindings are environment defaults merged under CLI-supplied bindings.
	Bindings release.BindingSet `yaml:"bindings,omitempty"`
}

// ExecutorConfig holds string-form durations and attempt counts for the
// rollout executor. Empty values fall back to built-in defaults.
type ExecutorConfig struct {
	// HealthAttempts bounds health-gating polls per resource.
	HealthAttempts uint `yaml:"healthAttempts,omitempty"`
	// HealthBackoff is the initial delay between health polls (e.g. "2s").
	HealthBackoff string `yaml:"healthBackoff,omitempty"`
	// HealthBackoffCeiling caps the poll delay (e.g. "30s").
	HealthBackoffCeiling string `yaml:"healthBackoffCeiling,omitempty"`
	// ApplyAttempts bounds retries of transiently failing apply calls.
	ApplyAttempts uint `yaml:"applyAttempts,omitempty"`
	// ClusterCallTimeout bounds each individual cluster call (e.g. "30s").
	ClusterCallTimeout string `yaml:"clusterCallTimeout,omitempty"`
}

// ExecutorDurations is the parsed form of the executor duration settings.
// Zero values mean "use the built-in default".
type ExecutorDurations struct {
	HealthBackoff        time.Duration
	HealthBackoffCeiling time.Duration
	ClusterCallTimeout   time.Duration
}

// Load reads and validates rollout.yaml. Template and ledger paths are made
// absolute relative to the config file's directory.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", absPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", absPath, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", absPath, err)
	}

	baseDir := filepath.Dir(absPath)
	for i, tpl := range cfg.Templates {
		if !filepath.IsAbs(tpl) {
			cfg.Templates[i] = filepath.Join(baseDir, tpl)
		}
	}
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = filepath.Join(baseDir, "rollout.ledger.db")
	} else if !filepath.IsAbs(cfg.LedgerPath) && cfg.LedgerPath != ":memory:" {
		cfg.LedgerPath = filepath.Join(baseDir, cfg.LedgerPath)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Project) == "" {
		return fmt.Errorf("project is required")
	}
	if len(c.Templates) == 0 {
		return fmt.Errorf("at least one template file is required")
	}
	if len(c.Environments) == 0 {
		return fmt.Errorf("at least one environment is required")
	}
	if _, err := c.Executor.Durations(); err != nil {
		return err
	}
	return nil
}

// ResolveEnvironment returns the named environment or an error listing the
// configured ones.
func ResolveEnvironment(cfg *Config, name string) (Environment, error) {
	if strings.TrimSpace(name) == "" {
		return Environment{}, fmt.Errorf("environment name is required: %w", release.ErrValidation)
	}
	env, ok := cfg.Environments[name]
	if !ok {
		known := make([]string, 0, len(cfg.Environments))
		for k := range cfg.Environments {
			known = append(known, k)
		}
		sort.Strings(known)
		return Environment{}, fmt.Errorf("unknown environment %q (configured: %s): %w",
			name, strings.Join(known, ", "), release.ErrValidation)
	}
	return env, nil
}

// Durations parses the string-form executor durations.
func (e ExecutorConfig) Durations() (ExecutorDurations, error) {
	var out ExecutorDurations

	parse := func(field, value string) (time.Duration, error) {
		if strings.TrimSpace(value) == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("executor.%s: invalid duration %q: %w", field, value, err)
		}
		return d, nil
	}

	var err error
	if out.HealthBackoff, err = parse("healthBackoff", e.HealthBackoff); err != nil {
		return out, err
	}
	if out.HealthBackoffCeiling, err = parse("healthBackoffCeiling", e.HealthBackoffCeiling); err != nil {
		return out, err
	}
	if out.ClusterCallTimeout, err = parse("clusterCallTimeout", e.ClusterCallTimeout); err != nil {
		return out, err
	}
	return out, nil
}
