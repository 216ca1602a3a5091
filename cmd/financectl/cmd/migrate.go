package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/warp/finance-tracker/store/sqlite"
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply every pending schema migration to the configured database.

Running it on an up-to-date database is a no-op.

Example:
  financectl migrate --db ./data/finance.db`,
	Args: cobra.NoArgs,
	Run:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) {
	if cfg.DBPath != ":memory:" {
		exitOnError(os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755), "failed to create database directory")
	}

	store, err := sqlite.New(cfg.DBPath)
	exitOnError(err, "failed to open database")
	defer store.Close()

	status, err := store.Migrate()
	exitOnError(err, "failed to migrate database")

	logger.WithField("db_path", cfg.DBPath).
		WithField("before", status.Before).
		WithField("after", status.After).
		Info("Migrate.Complete")

	if status.Before == status.After {
		fmt.Printf("Schema is up to date (version %d)\n", status.After)
		return
	}
	fmt.Printf("Migrated schema from version %d to %d\n", status.Before, status.After)
}
