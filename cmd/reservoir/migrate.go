package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/reservoir/internal/db"
)

func migrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or change the database schema version",
	}
	// Each subcommand opens the database without migrating it first.
	withDB := func(fn func(cmd *cobra.Command, store *db.DB, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			store, err := db.OpenDB(a.databasePath())
			if err != nil {
				return err
			}
			defer store.Close()
			return fn(cmd, store, args)
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, store *db.DB, _ []string) error {
				if err := store.MigrateUp(); err != nil {
					return err
				}
				return printStatus(cmd, store)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, store *db.DB, _ []string) error {
				if err := store.MigrateDown(); err != nil {
					return err
				}
				return printStatus(cmd, store)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show current and latest schema versions",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, store *db.DB, _ []string) error {
				return printStatus(cmd, store)
			}),
		},
		&cobra.Command{
			Use:   "to VERSION",
			Short: "Migrate up or down to VERSION",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(cmd *cobra.Command, store *db.DB, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				if err := store.MigrateTo(uint(v)); err != nil {
					return err
				}
				return printStatus(cmd, store)
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the version without running migrations (dirty state recovery)",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(cmd *cobra.Command, store *db.DB, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				if err := store.MigrateForce(v); err != nil {
					return err
				}
				return printStatus(cmd, store)
			}),
		},
	)
	return cmd
}

func printStatus(cmd *cobra.Command, store *db.DB) error {
	st, err := store.GetMigrationStatus()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "current: %d\nlatest:  %d\npending: %d\n", st.CurrentVersion, st.LatestVersion, st.Pending)
	if st.Dirty {
		fmt.Fprintln(out, "WARNING: database is dirty; fix the schema by hand and run 'migrate force'")
	}
	return nil
}
