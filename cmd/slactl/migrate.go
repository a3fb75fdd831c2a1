package main

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/splax/slaguard/internal/app/migrate"
	"github.com/splax/slaguard/pkg/logger"
)

func newMigrateCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the engine's database schema",
	}

	withRunner := func(run func(cmd *cobra.Command, runner migrate.Runner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := flags.context(cmd.Context())
			defer cancel()

			pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			runner, err := migrate.New(pool, cfg.DatabaseURL, logger.New("slactl", slog.LevelInfo))
			if err != nil {
				return err
			}
			cmd.SetContext(ctx)
			return run(cmd, runner)
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(cmd *cobra.Command, runner migrate.Runner) error {
			return runner.Ensure(cmd.Context())
		}),
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(cmd *cobra.Command, runner migrate.Runner) error {
			return runner.Status(cmd.Context())
		}),
	}
	var target int64
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration, or down to --target",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(cmd *cobra.Command, runner migrate.Runner) error {
			return runner.Down(cmd.Context(), target)
		}),
	}
	down.Flags().Int64Var(&target, "target", 0, "Target version (optional)")

	cmd.AddCommand(up, status, down)
	return cmd
}
