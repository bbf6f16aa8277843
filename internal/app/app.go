// Package app wires configuration, schema, catalog, extractor and coordinator
// into a runnable pipeline.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"form990/internal/auth"
	"form990/internal/batch"
	"form990/internal/catalog"
	"form990/internal/config"
	"form990/internal/extractor"
	"form990/internal/logger"
	"form990/internal/models"
	"form990/internal/schema"
	"form990/internal/server"
	"form990/internal/table"
)

// App holds the assembled pipeline.
type App struct {
	Config      *config.Config
	Logger      *logger.Logger
	Schema      *schema.Schema
	Extractor   *extractor.Extractor
	Catalog     *catalog.Client
	Coordinator *batch.Coordinator
}

// New assembles the pipeline with a default HTTP client.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	return NewWithHTTPClient(cfg, log, &http.Client{})
}

// NewWithHTTPClient assembles the pipeline, sending catalog requests through httpClient.
func NewWithHTTPClient(cfg *config.Config, log *logger.Logger, httpClient *http.Client) (*App, error) {
	if log == nil {
		log = logger.Discard()
	}

	s, err := LoadSchema(cfg.Schema.File)
	if err != nil {
		return nil, err
	}

	ext, err := extractor.New(s, log)
	if err != nil {
		return nil, err
	}

	client := catalog.NewClientWithHTTP(httpClient, &cfg.Catalog, log)

	return &App{
		Config:      cfg,
		Logger:      log,
		Schema:      s,
		Extractor:   ext,
		Catalog:     client,
		Coordinator: batch.NewCoordinator(client, client, ext, cfg.Batch, log),
	}, nil
}

// LoadSchema returns the schema at path, or the built-in schema for an empty path.
func LoadSchema(path string) (*schema.Schema, error) {
	if path == "" {
		s, err := schema.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load built-in schema: %w", err)
		}

		return s, nil
	}

	s, err := schema.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", path, err)
	}

	return s, nil
}

// RunFile reads the input table at inputPath, runs the batch and writes the
// output table to outputPath in the configured format. Input errors are
// returned before any request is made.
func (a *App) RunFile(ctx context.Context, inputPath, outputPath string, progress chan<- models.Event) (*models.BatchResult, error) {
	reqs, err := table.ReadRequestsFile(inputPath, a.Config.Batch.MaxRows)
	if err != nil {
		return nil, err
	}

	a.Logger.Info("Input loaded", "file", inputPath, "requests", len(reqs))

	result, err := a.Coordinator.Run(ctx, reqs, progress)
	if err != nil {
		return result, err
	}

	if err := table.WriteFile(outputPath, result.Table, a.Config.Output.Format); err != nil {
		return result, err
	}

	a.Logger.Info("Output written", "file", outputPath, "rows", result.Table.Len(), "run_id", result.RunID)

	return result, nil
}

// Server builds the batch-submission server, with authentication when enabled.
func (a *App) Server() (*server.Server, error) {
	var authMW *auth.Middleware

	if a.Config.Server.Auth.Enabled {
		store, err := auth.NewSecretStoreFromConfig(a.Config.Server.Auth.SecretEnv, a.Config.Server.Auth.SecretFile)
		if err != nil {
			return nil, err
		}

		authMW = auth.NewMiddleware(store, a.Config.Server.Auth.Realm, a.Logger)
	}

	return server.New(a.Coordinator, a.Config.Server, authMW, a.Logger), nil
}

// HTTPServer wraps the handler in an http.Server bound to the configured
// address. The write timeout covers a full batch at the configured timeouts.
func (a *App) HTTPServer() (*http.Server, error) {
	srv, err := a.Server()
	if err != nil {
		return nil, err
	}

	batchBudget := time.Duration(a.Config.Batch.MaxRows/a.Config.Batch.Concurrency+1) *
		(a.Config.Catalog.LookupTimeout() + a.Config.Catalog.FetchTimeout())

	return &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: batchBudget + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}, nil
}
