/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the finance tracker API server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, YAML, .env, FINANCE_* env, flags)
  2. Set up the logrus logger
  3. Open the SQLite store and apply pending migrations
  4. Create API handler and router
  5. Start the materialization scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (optional)
  -env     .env file (default: .env if present)
  -port    HTTP server port, overrides config
  -db      SQLite database path, overrides config
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a pass in progress)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/finance.db"
  ./server -config=finance.yaml -port=3000
  FINANCE_SCHEDULER_ENABLED=false ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration sources
  - cmd/financectl: Operator CLI (migrate, materialize, preview)
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/finance-tracker/api"
	"github.com/warp/finance-tracker/config"
	"github.com/warp/finance-tracker/logging"
	"github.com/warp/finance-tracker/store/sqlite"
)

func main() {
	// Flags
	configFile := flag.String("config", "", "YAML config file")
	envFile := flag.String("env", "", "dotenv file (default .env)")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(config.Options{File: *configFile, EnvFile: *envFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger, err := logging.SetupLogging(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server.Run.Error")
	}
}

func run(cfg config.Config, logger *logrus.Logger) error {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Initialize store
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	version, _, err := store.SchemaVersion()
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"db_path": cfg.DBPath, "schema_version": version}).Info("Store.Open.Complete")

	handler := api.NewHandler(store, logger, cfg.SafetyCap)
	router := api.NewRouter(handler, logger, cfg.CORS.AllowedOrigins)

	scheduler := api.NewMaterializationScheduler(handler.Runner, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Interval = cfg.Scheduler.Interval
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("Server.Start")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Server.Shutdown.Start")
	case err := <-serverErr:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server.Shutdown.Complete")
	return nil
}
