// Command statusctl runs administrative tasks against the Statusify database.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/go-extras/cobraflags"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/statusify/statusify/internal/config"
	"github.com/statusify/statusify/internal/migration"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const databaseURLFlag = "database-url"

var rootFlags = map[string]cobraflags.Flag{
	databaseURLFlag: &cobraflags.StringFlag{
		Name:  databaseURLFlag,
		Value: "",
		Usage: "PostgreSQL connection string (defaults to STATUSIFY_DATABASE_URL)",
	},
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	goose.SetLogger(migration.NewGooseAdapter(logger))

	if err := newRootCommand(logger).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(logger zerolog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "statusctl",
		Short:        "Administrative tasks for Statusify",
		SilenceUsage: true,
	}
	cobraflags.RegisterMap(rootCmd, rootFlags)

	rootCmd.AddCommand(newMigrateCommand(logger))
	rootCmd.AddCommand(newUserCommand())
	return rootCmd
}

// databaseURL prefers the flag and falls back to the environment.
func databaseURL() (string, error) {
	if url := rootFlags[databaseURLFlag].GetString(); url != "" {
		return url, nil
	}
	_ = godotenv.Load()
	url := config.New().GetString("database_url")
	if url == "" {
		return "", fmt.Errorf("--%s or STATUSIFY_DATABASE_URL must be set", databaseURLFlag)
	}
	return url, nil
}

func openDB() (*sql.DB, error) {
	url, err := databaseURL()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
