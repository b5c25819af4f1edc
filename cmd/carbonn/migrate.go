package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store/postgres"
)

var (
	migrateUp       = postgres.Migrate
	migrationStatus = postgres.Status
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applied, err := migrateUp(cmd.Context(), cfg.PostgresURL)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return err
			}
			for _, version := range applied {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "applied %d\n", version); err != nil {
					return err
				}
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			statuses, err := migrationStatus(cmd.Context(), cfg.PostgresURL)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tSTATE\tFILE")
			for _, status := range statuses {
				state := "pending"
				if status.Applied {
					state = "applied"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", status.Version, state, status.Path)
			}
			return w.Flush()
		},
	})
	return cmd
}
