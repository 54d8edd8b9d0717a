package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// newHistoryCommand creates the "history" subcommand that prints the
// environment's release history from the ledger.
func newHistoryCommand(opts *Options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "history <environment>",
		Short: "Show the environment's release history",
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

			entries, err := ldg.History(cmd.Context(), environment)
			if err != nil {
				return err
			}

			if strings.EqualFold(output, "json") {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tRELEASE\tSTATUS\tARTIFACT\tRECORDED")
			for _, entry := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					entry.Seq,
					entry.ReleaseID,
					entry.Status,
					entry.Snapshot.ArtifactRef.String(),
					entry.CreatedAt.Format(time.RFC3339),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&output, "output", "table", "Output format: table|json")
	return cmd
}
