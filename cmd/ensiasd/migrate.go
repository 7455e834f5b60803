package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ensiasd/academics/internal/platform"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(db *sql.DB) error {
				if err := platform.MigrateDown(db, steps); err != nil {
					return err
				}
				fmt.Printf("Rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending schema migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(cmd, func(db *sql.DB) error {
					if err := platform.AutoMigrate(db); err != nil {
						return err
					}
					return printVersion(db)
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(cmd, printVersion)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the embedded migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				names, err := platform.Migrations()
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Println(n)
				}
				return nil
			},
		},
	)
	return cmd
}

func withDatabase(cmd *cobra.Command, fn func(*sql.DB) error) error {
	root, err := resolveRoot(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	_, db, err := openStore(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func printVersion(db *sql.DB) error {
	v, dirty, err := platform.SchemaVersion(db)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Printf("Schema version %d (%s)\n", v, state)
	return nil
}
