package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/app/migrate"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/config"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var timeout time.Duration
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the deployment schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "command timeout")

	withRunner := func(fn func(ctx context.Context, r *migrate.Runner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg := config.LoadAPIConfig()
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			log := logger.New("migrate", cfg.LogLevel)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()
			source, err := migrate.Source(cfg.MigrationsDir)
			if err != nil {
				return err
			}
			runner, err := migrate.New(pool, source, log)
			if err != nil {
				return err
			}
			defer runner.Close()
			if err := runner.Ping(ctx); err != nil {
				return err
			}
			return fn(ctx, runner)
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withRunner(func(ctx context.Context, r *migrate.Runner) error {
			version, err := r.Up(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("schema at version %d\n", version)
			return nil
		}),
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: withRunner(func(ctx context.Context, r *migrate.Runner) error {
			statuses, err := r.Status(ctx)
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Version", "File", "Applied", "Applied At"})
			for _, st := range statuses {
				appliedAt := "-"
				if st.Applied {
					appliedAt = st.AppliedAt.UTC().Format(time.RFC3339)
				}
				t.AppendRow(table.Row{st.Version, st.Path, st.Applied, appliedAt})
			}
			t.Render()
			return nil
		}),
	}

	var target int64
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration or down to --target",
		RunE: withRunner(func(ctx context.Context, r *migrate.Runner) error {
			return r.Down(ctx, target)
		}),
	}
	down.Flags().Int64Var(&target, "target", 0, "target version to roll back to")

	root.AddCommand(up, status, down)
	return root
}
