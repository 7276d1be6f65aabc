package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/dorank/internal/config"
	"github.com/JakeFAU/dorank/internal/report"
	"github.com/JakeFAU/dorank/internal/server"
	"github.com/JakeFAU/dorank/internal/stats"
)

type cycleRunner interface {
	Run(ctx context.Context, req report.Request) (stats.Report, error)
}

// newRunner builds a runner and its cleanup. It's a variable so tests can
// replace it.
var newRunner = func(ctx context.Context, cfg config.Config) (cycleRunner, func(context.Context) error, error) {
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return app.Cycle(), app.Close, nil
}

func newReportCmd() *cobra.Command {
	var (
		channel string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Runs one reporting cycle",
		Long: `Gathers the current figures, compares them with the stored records,
stores any new records and posts the report. The report is also printed as
JSON. With --dry-run nothing is written to the store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			runner, closeFn, err := newRunner(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer func() { _ = closeFn(context.WithoutCancel(cmd.Context())) }()

			if channel == "" {
				channel = cfg.BroadcastChannel()
			}
			rep, runErr := runner.Run(cmd.Context(), report.Request{
				Trigger:    stats.TriggerCLI,
				Channel:    channel,
				Visibility: stats.VisibilityBroadcast,
				DryRun:     dryRun,
			})
			if rep.CycleID != "" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return fmt.Errorf("print report: %w", err)
				}
			}
			if runErr != nil {
				return fmt.Errorf("run cycle: %w", runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel to post to (defaults to the broadcast channel)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute and post the report without storing new records")
	return cmd
}
