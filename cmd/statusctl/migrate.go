package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/statusify/statusify/internal/migration"
)

func newMigrateCommand(logger zerolog.Logger) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Apply, roll back or inspect database migrations",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migration.Up(db); err != nil {
				return err
			}
			logger.Info().Msg("Migrations completed successfully")
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(_ *cobra.Command, _ []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return migration.Down(db)
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied state of each migration",
		RunE: func(_ *cobra.Command, _ []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return migration.Status(db)
		},
	})

	return migrateCmd
}
