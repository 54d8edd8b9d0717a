// Package cli defines the command-line interface for rolloutctl.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rollout-k8s/rolloutctl/internal/logging"
)

const (
	// defaultConfigPath is the default path to the project configuration file.
	defaultConfigPath = "rollout.yaml"
)

// Options stores global CLI options shared between commands.
type Options struct {
	ConfigPath string
	LedgerPath string
	LogLevel   logging.Level
}

// Execute builds the root command, runs it with the provided args and logger,
// and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	return ExecuteContext(context.Background(), args, logger)
}

// ExecuteContext is like Execute but propagates the caller's context so that
// signals cancel in-flight rollouts.
func ExecuteContext(ctx context.Context, args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}

	rootOpts := &Options{
		ConfigPath: defaultConfigPath,
		LogLevel:   logging.LevelInfo,
	}
	applyEnvDefaults(rootOpts)

	rootCmd := newRootCommand(rootOpts, logger)
	rootCmd.SetArgs(args)

	return rootCmd.ExecuteContext(ctx)
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rolloutctl",
		Short: "rolloutctl is a safe, idempotent deployment rollout orchestrator",
		Long: "rolloutctl plans and applies releases from typed manifest templates: it diffs resolved\n" +
			"resources against the environment's release history, applies them in dependency order\n" +
			"with health gating, and records every lifecycle transition in an append-only ledger.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := logging.ParseLevel(cmd.Flag("log-level").Value.String())
			opts.LogLevel = level
			logger = logging.NewLogger(os.Stderr, level)
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", opts.ConfigPath, "Path to rollout.yaml configuration file")
	cmd.PersistentFlags().StringVar(&opts.LedgerPath, "ledger", opts.LedgerPath, "Path to the release ledger database (overrides rollout.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newPlanCommand(opts),
		newApplyCommand(opts),
		newRollbackCommand(opts),
		newHistoryCommand(opts),
		newRenderCommand(opts),
		newBuildCommand(opts),
		newVerifyCommand(opts),
		newStatusCommand(opts),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}
