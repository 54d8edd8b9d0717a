package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rollout-k8s/rolloutctl/internal/cluster"
	"github.com/rollout-k8s/rolloutctl/internal/config"
	"github.com/rollout-k8s/rolloutctl/internal/executor"
)

// newRollbackCommand creates the "rollback" subcommand that re-applies the
// environment's last succeeded release over a failed one.
func newRollbackCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback <environment>",
		Short: "Re-apply the last succeeded release and mark the failed one rolled back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())
			environment := args[0]

			cfg, err := loadProject(opts)
			if err != nil {
				return err
			}
			envCfg, err := config.ResolveEnvironment(cfg, environment)
			if err != nil {
				return err
			}
			execCfg, err := executorConfig(cfg)
			if err != nil {
				return err
			}

			ldg, err := openLedger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = ldg.Close() }()

			client := cluster.NewKubectlClient(envCfg.Kubeconfig, envCfg.Context, envCfg.Namespace)
			exec := executor.New(client, ldg, execCfg, logger)

			outcome, err := exec.Rollback(cmd.Context(), environment)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "release %s rolled back: %d resources re-applied\n",
				outcome.Release.ID, len(outcome.Applied))
			return nil
		},
	}

	return cmd
}
