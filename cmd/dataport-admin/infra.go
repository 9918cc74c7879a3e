package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/target/mmk-dataport/internal/bootstrap"
	"github.com/target/mmk-dataport/internal/migrate"
)

func newMigrateCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := db.Close(); cerr != nil {
					a.logger.Warn("db close failed", "error", cerr)
				}
			}()

			if dryRun {
				pending, err := migrate.Pending(ctx, db)
				if err != nil {
					return fmt.Errorf("list pending migrations: %w", err)
				}
				if len(pending) == 0 {
					_, err = fmt.Fprintln(a.out, "No pending migrations")
					return err
				}
				_, err = fmt.Fprintf(a.out, "Pending migrations:\n  %s\n", strings.Join(pending, "\n  "))
				return err
			}
			return bootstrap.RunMigrations(ctx, db, a.logger)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}

func newReapOnceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reap-once",
		Short: "Fail jobs with expired leases and redispatch stale CREATED jobs, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				report, err := s.ReapOnce(ctx)
				if err != nil {
					return fmt.Errorf("reap: %w", err)
				}
				return a.writeJSON(report)
			})
		},
	}
}
