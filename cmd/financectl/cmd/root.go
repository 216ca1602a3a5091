// Package cmd provides CLI commands for financectl.
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/finance-tracker/config"
	"github.com/warp/finance-tracker/logging"
	"github.com/warp/finance-tracker/store/sqlite"
)

var (
	cfgFile string
	envFile string
	dbPath  string
	debug   bool

	cfg    config.Config
	logger *logrus.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "financectl",
	Short: "Operate the finance tracker database",
	Long: `financectl runs maintenance tasks against the finance tracker's
SQLite database outside the HTTP server.

It supports:
- Applying schema migrations
- Materializing recurring transactions for one rule or all rules
- Previewing a rule's upcoming occurrences

Example:
  financectl migrate
  financectl materialize --all
  financectl preview 3 --months 6`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(config.Options{File: cfgFile, EnvFile: envFile})
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}

		level := cfg.LogLevel
		if debug {
			level = "debug"
		}
		logger, err = logging.SetupLogging(level, "text")
		if err != nil {
			return err
		}
		logger.SetOutput(os.Stderr)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "dotenv file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(materializeCmd)
	rootCmd.AddCommand(previewCmd)
}

// openStore opens the configured database with migrations applied.
func openStore() *sqlite.Store {
	store, err := sqlite.Open(cfg.DBPath)
	exitOnError(err, "failed to open database")
	return store
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		logger.WithError(err).Error(msg)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
