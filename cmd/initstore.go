package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/dorank/internal/extremum"
	"github.com/JakeFAU/dorank/internal/server"
)

func newInitStoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-store",
		Short: "Creates the key-value table and seeds every tracked key",
		Long: `Creates the extremum table if needed and inserts a null value for
every tracked key that is missing. Existing records are left untouched, so
the command is safe to run repeatedly. The current values are printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			store, err := server.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			tracker, err := extremum.New(store, nil, zap.NewNop())
			if err != nil {
				return err
			}
			if err := tracker.Init(cmd.Context()); err != nil {
				return err
			}
			records, err := tracker.Records(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, rec := range records {
				value := "null"
				if rec.Value != nil {
					value = fmt.Sprintf("%g", *rec.Value)
				}
				fmt.Fprintf(w, "%s\t%s\n", rec.Name, value)
			}
			return w.Flush()
		},
	}
}
