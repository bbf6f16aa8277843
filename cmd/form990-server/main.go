// Package main provides the HTTP batch-submission server for form990.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"form990/internal/app"
	"form990/internal/cli"
	"form990/internal/config"
	"form990/internal/logger"
)

func main() {
	// Define command-line flags
	configFile := flag.String("config", "", "Path to YAML configuration file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	maxRows := flag.Int("max-rows", 0, "Maximum rows per batch (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")

	flag.Parse()

	cfg := config.Default()

	if *configFile != "" {
		fmt.Printf("⚙️  Loading configuration from: %s\n", *configFile)

		var err error

		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("❌ Failed to load config: %v\n", err)
		}

		fmt.Printf("✅ Configuration loaded: %s\n", cfg)
	}

	// Environment overrides for container deployments
	if port := os.Getenv("PORT"); port != "" && *addr == "" {
		cfg.Server.Addr = ":" + port
	}

	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	if *maxRows > 0 {
		cfg.Batch.MaxRows = *maxRows
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v\n", err)
	}

	logr, closeLog := logger.NewLoggerWithFile(cfg.Logging.Level, cfg.Logging.File)
	defer func() { _ = closeLog() }()

	a, err := app.New(cfg, logr)
	if err != nil {
		log.Fatalf("❌ Failed to initialize: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Serve(ctx, a); err != nil {
		logr.Error("server error", "error", err)
		stop()
		_ = closeLog()
		os.Exit(1)
	}
}
