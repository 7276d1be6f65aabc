package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/dorank/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP service",
		Long: `Serves the trigger endpoint for schedulers, the Slack slash command
endpoint, health checks and Prometheus metrics until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}
