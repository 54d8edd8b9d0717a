package cli

import (
	"github.com/spf13/cobra"

	"github.com/rollout-k8s/rolloutctl/internal/bindings"
	"github.com/rollout-k8s/rolloutctl/internal/config"
	"github.com/rollout-k8s/rolloutctl/internal/executor"
	"github.com/rollout-k8s/rolloutctl/internal/ledger"
	"github.com/rollout-k8s/rolloutctl/internal/release"
	"github.com/rollout-k8s/rolloutctl/internal/template"
)

// addVarsFlags registers the binding-related flags shared by commands that
// resolve templates.
func addVarsFlags(cmd *cobra.Command) {
	cmd.Flags().String("vars", "", "Additional bindings in k=v,k2=v2 format")
	cmd.Flags().String("var-file", "", "Path to YAML/ENV file with additional bindings")
}

// loadProject loads rollout.yaml honoring the global --ledger override.
func loadProject(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LedgerPath != "" {
		cfg.LedgerPath = opts.LedgerPath
	}
	return cfg, nil
}

// openLedger opens the project's release ledger.
func openLedger(cfg *config.Config) (*ledger.Store, error) {
	return ledger.Open(cfg.LedgerPath)
}

// newTemplateStore loads the project's templates.
func newTemplateStore(cfg *config.Config) (*template.Store, error) {
	return template.NewStore(cfg.Templates...)
}

// collectBindings merges binding sources for one release, lowest precedence
// first: environment defaults from rollout.yaml, then ROLLOUTCTL_VAR_FILE and
// --var-file contents, then ROLLOUTCTL_VARS and --vars inline pairs.
func collectBindings(cmd *cobra.Command, envCfg config.Environment) (release.BindingSet, error) {
	fromEnv := envVars()

	var varFiles []string
	if fromEnv.VarFile != "" {
		varFiles = append(varFiles, fromEnv.VarFile)
	}
	if flag := cmd.Flag("var-file"); flag != nil && flag.Value.String() != "" {
		varFiles = append(varFiles, flag.Value.String())
	}
	fileVars, err := bindings.LoadVarFiles(varFiles)
	if err != nil {
		return nil, err
	}

	envInline, err := bindings.ParseInline(fromEnv.Vars)
	if err != nil {
		return nil, err
	}
	var inline release.BindingSet
	if flag := cmd.Flag("vars"); flag != nil {
		inline, err = bindings.ParseInline(flag.Value.String())
		if err != nil {
			return nil, err
		}
	}

	return bindings.Merge(envCfg.Bindings, fileVars, envInline, inline), nil
}

// executorConfig translates the rollout.yaml executor block into executor
// settings, leaving zero values for the executor's built-in defaults.
func executorConfig(cfg *config.Config) (executor.Config, error) {
	durations, err := cfg.Executor.Durations()
	if err != nil {
		return executor.Config{}, err
	}
	return executor.Config{
		HealthAttempts:       cfg.Executor.HealthAttempts,
		HealthBackoff:        durations.HealthBackoff,
		HealthBackoffCeiling: durations.HealthBackoffCeiling,
		ApplyAttempts:        cfg.Executor.ApplyAttempts,
		ClusterCallTimeout:   durations.ClusterCallTimeout,
	}, nil
}
