package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-pipeline/src/config"
	"market-pipeline/src/interfaces"
	"market-pipeline/src/logger"
	"market-pipeline/src/orchestrator"
	"market-pipeline/src/storage"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	// Setup storage backend
	var db interfaces.IDatabase

	switch cfg.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(cfg.MConfig, appLogger.Named("storage"))
	default:
		// Default to SQLite
		db, err = storage.NewSQLiteDB(cfg.MConfig, appLogger.Named("storage"))
	}
	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}

	// Build and start the pipeline
	orch, err := orchestrator.NewOrchestrator(cfg.MConfig, db, appLogger)
	if err != nil {
		appLogger.Critical("Failed to build pipeline: %v", err)
	}

	if err := orch.Start(); err != nil {
		appLogger.Critical("Failed to start pipeline: %v", err)
	}

	// Block until shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	orch.Stop()
}
