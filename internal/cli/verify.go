package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVerifyCommand creates the "verify" subcommand that checks the ledger's
// hash chain for an environment.
func newVerifyCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <environment>",
		Short: "Verify the integrity of the environment's ledger chain",
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

			if err := ldg.Verify(cmd.Context(), environment); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ledger chain for %q verified\n", environment)
			return nil
		},
	}

	return cmd
}
