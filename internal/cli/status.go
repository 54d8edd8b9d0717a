package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rollout-k8s/rolloutctl/internal/release"
)

// newStatusCommand creates the "status" subcommand that summarizes the
// environment's latest release.
func newStatusCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <environment>",
		Short: "Show the environment's latest release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			environment := args[0]

			cfg, err := loadProject(opts)
			if err != nil {
				return err
			}
			ldg, err := openLedger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = ldg.Close() }()

			rel, err := ldg.Latest(cmd.Context(), environment)
			if err != nil {
				if errors.Is(err, release.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "environment %q has no releases\n", environment)
					return nil
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "release:     %s\n", rel.ID)
			fmt.Fprintf(out, "status:      %s\n", rel.Status)
			fmt.Fprintf(out, "artifact:    %s\n", rel.ArtifactRef.String())
			fmt.Fprintf(out, "resources:   %d\n", len(rel.Documents))
			if len(rel.Applied) > 0 {
				fmt.Fprintf(out, "applied:     %v\n", rel.Applied)
			}
			fmt.Fprintf(out, "updated at:  %s\n", rel.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}

	return cmd
}
