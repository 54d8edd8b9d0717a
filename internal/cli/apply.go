package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rollout-k8s/rolloutctl/internal/cluster"
	"github.com/rollout-k8s/rolloutctl/internal/config"
	"github.com/rollout-k8s/rolloutctl/internal/executor"
)

// newApplyCommand creates the "apply" subcommand that rolls out a planned
// release against its environment's cluster.
func newApplyCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <releaseID>",
		Short: "Apply a planned release with ordering and health gating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())
			releaseID := args[0]

			cfg, err := loadProject(opts)
			if err != nil {
				return err
			}
			ldg, err := openLedger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = ldg.Close() }()

			rel, err := ldg.Get(cmd.Context(), releaseID)
			if err != nil {
				return err
			}
			envCfg, err := config.ResolveEnvironment(cfg, rel.Environment)
			if err != nil {
				return err
			}
			execCfg, err := executorConfig(cfg)
			if err != nil {
				return err
			}

			client := cluster.NewKubectlClient(envCfg.Kubeconfig, envCfg.Context, envCfg.Namespace)
			exec := executor.New(client, ldg, execCfg, logger)

			outcome, err := exec.Apply(cmd.Context(), rel)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "release %s %s: %d applied, %d unchanged\n",
				outcome.Release.ID, outcome.Release.Status, len(outcome.Applied), len(outcome.Skipped))
			return nil
		},
	}

	return cmd
}
