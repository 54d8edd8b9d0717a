package cli

import (
	envparse "github.com/caarlos0/env/v11"
)

// baseEnv defines root CLI defaults sourced from ROLLOUTCTL_* env vars.
type baseEnv struct {
	// ConfigPath is the rollout.yaml path from ROLLOUTCTL_CONFIG.
	ConfigPath string `env:"ROLLOUTCTL_CONFIG"`
	// LedgerPath is the ledger database path from ROLLOUTCTL_LEDGER.
	LedgerPath string `env:"ROLLOUTCTL_LEDGER"`
}

// varsEnv describes inline bindings and var files passed via env.
type varsEnv struct {
	// Vars is a k=v,k2=v2 list from ROLLOUTCTL_VARS.
	Vars string `env:"ROLLOUTCTL_VARS"`
	// VarFile is a bindings file path from ROLLOUTCTL_VAR_FILE.
	VarFile string `env:"ROLLOUTCTL_VAR_FILE"`
}

// applyEnvDefaults fills unset root options from ROLLOUTCTL_* env vars.
func applyEnvDefaults(opts *Options) {
	var base baseEnv
	if err := envparse.Parse(&base); err != nil {
		return
	}
	if base.ConfigPath != "" {
		opts.ConfigPath = base.ConfigPath
	}
	if base.LedgerPath != "" {
		opts.LedgerPath = base.LedgerPath
	}
}

// envVars reads binding-related defaults from ROLLOUTCTL_* env vars.
func envVars() varsEnv {
	var v varsEnv
	_ = envparse.Parse(&v)
	return v
}
