package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rollout-k8s/rolloutctl/internal/config"
	"github.com/rollout-k8s/rolloutctl/internal/planner"
	"github.com/rollout-k8s/rolloutctl/internal/release"
)

// newPlanCommand creates the "plan" subcommand that computes and records a
// release for an environment and artifact.
func newPlanCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <environment> <artifactRef>",
		Short: "Compute a release plan for an environment and digest-pinned artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())
			environment := args[0]

			artifactRef, err := release.ParseArtifactRef(args[1])
			if err != nil {
				return err
			}

			cfg, err := loadProject(opts)
			if err != nil {
				return err
			}
			envCfg, err := config.ResolveEnvironment(cfg, environment)
			if err != nil {
				return err
			}
			binds, err := collectBindings(cmd, envCfg)
			if err != nil {
				return err
			}

			store, err := newTemplateStore(cfg)
			if err != nil {
				return err
			}
			ldg, err := openLedger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = ldg.Close() }()

			rel, err := planner.New(store, ldg, logger).Plan(cmd.Context(), environment, artifactRef, binds)
			if err != nil {
				return err
			}

			for _, doc := range rel.Documents {
				marker := "unchanged"
				if doc.Changed {
					marker = "changed"
				}
				logger.Info("planned resource", "resource", doc.Ref(), "state", marker)
			}
			fmt.Fprintln(cmd.OutOrStdout(), rel.ID)
			return nil
		},
	}

	addVarsFlags(cmd)
	return cmd
}
