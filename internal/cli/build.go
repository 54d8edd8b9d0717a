package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rollout-k8s/rolloutctl/internal/registry"
	"github.com/rollout-k8s/rolloutctl/internal/release"
)

// newBuildCommand creates the "build" subcommand that builds and pushes the
// application image and prints its digest-pinned reference, ready to feed
// into "plan".
func newBuildCommand(opts *Options) *cobra.Command {
	var repository string

	cmd := &cobra.Command{
		Use:   "build <contextDir>",
		Short: "Build and push the application image, printing its digest reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())
			contextDir := args[0]

			cfg, err := loadProject(opts)
			if err != nil {
				return err
			}

			repo := strings.TrimSpace(repository)
			if repo == "" {
				repo = cfg.Image.Repository
			}
			if repo == "" {
				return fmt.Errorf("no image repository configured (set image.repository or --repository): %w", release.ErrValidation)
			}

			builder := registry.NewDockerBuilder(repo, logger)
			builder.Dockerfile = cfg.Image.Dockerfile

			artifactRef, err := builder.BuildAndPush(cmd.Context(), contextDir)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), artifactRef.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&repository, "repository", "", "Image repository override")
	return cmd
}
