// Package config provides configuration management for the filing extractor.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrMissingBaseURL           = errors.New("catalog.base_url is required")
	ErrInvalidBaseURL           = errors.New("catalog.base_url must be an absolute http(s) URL")
	ErrLookupPathPlaceholder    = errors.New("catalog.lookup_path must contain {ein}")
	ErrDownloadPathPlaceholder  = errors.New("catalog.download_path must contain {object_id}")
	ErrMissingHandleMarker      = errors.New("catalog.handle_marker is required")
	ErrInvalidLookupTimeout     = errors.New("catalog.lookup_timeout_sec must be at least 1")
	ErrInvalidFetchTimeout      = errors.New("catalog.fetch_timeout_sec must be at least 1")
	ErrInvalidDocumentLimit     = errors.New("catalog.max_document_kb must be at least 1")
	ErrInvalidPageLimit         = errors.New("catalog.max_page_kb must be at least 1")
	ErrInvalidMaxAttempts       = errors.New("catalog.retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("catalog.retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("catalog.retry.backoff_multiplier must be >= 1.0")
	ErrInvalidConcurrency       = errors.New("batch.concurrency must be at least 1")
	ErrInvalidMaxRows           = errors.New("batch.max_rows must be at least 1")
	ErrInvalidOutputFormat      = errors.New("output.format must be 'csv' or 'xlsx'")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrMissingServerAddr        = errors.New("server.addr is required")
	ErrMissingSecretSource      = errors.New("server.auth requires secret_env or secret_file when enabled")
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Config represents the complete extractor configuration.
type Config struct {
	Catalog CatalogConfig `yaml:"catalog"`
	Batch   BatchConfig   `yaml:"batch"`
	Schema  SchemaConfig  `yaml:"schema"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
	Server  ServerConfig  `yaml:"server"`
}

// CatalogConfig describes the external filing catalog.
type CatalogConfig struct {
	BaseURL          string      `yaml:"base_url"`
	LookupPath       string      `yaml:"lookup_path"`
	DownloadPath     string      `yaml:"download_path"`
	HandleMarker     string      `yaml:"handle_marker"`
	UserAgent        string      `yaml:"user_agent"`
	LookupTimeoutSec int         `yaml:"lookup_timeout_sec"`
	FetchTimeoutSec  int         `yaml:"fetch_timeout_sec"`
	MaxDocumentKb    int         `yaml:"max_document_kb"`
	MaxPageKb        int         `yaml:"max_page_kb"`
	FilingYearOffset int         `yaml:"filing_year_offset"`
	Retry            RetryPolicy `yaml:"retry"`
}

// RetryPolicy defines retry behavior. The default of one attempt disables retries.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// BatchConfig bounds a single batch.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
	MaxRows     int `yaml:"max_rows"`
}

// SchemaConfig selects the field schema. An empty file means the built-in one.
type SchemaConfig struct {
	File string `yaml:"file"`
}

// OutputConfig defines output behavior.
type OutputConfig struct {
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ServerConfig configures the batch-submission endpoint.
type ServerConfig struct {
	Addr          string     `yaml:"addr"`
	AllowedOrigin string     `yaml:"allowed_origin"`
	Auth          AuthConfig `yaml:"auth"`
}

// AuthConfig configures the shared-secret check on inbound batches.
type AuthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SecretEnv  string `yaml:"secret_env"`
	SecretFile string `yaml:"secret_file"`
	Realm      string `yaml:"realm"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Catalog: CatalogConfig{
			BaseURL:          "https://projects.propublica.org/nonprofits",
			LookupPath:       "/organizations/{ein}",
			DownloadPath:     "/download-xml?object_id={object_id}",
			HandleMarker:     "download-xml?object_id=",
			UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			LookupTimeoutSec: 20,
			FetchTimeoutSec:  30,
			MaxDocumentKb:    32 * 1024,
			MaxPageKb:        4 * 1024,
			FilingYearOffset: 1,
			Retry: RetryPolicy{
				MaxAttempts:       1,
				InitialDelayMs:    500,
				MaxDelayMs:        10000,
				BackoffMultiplier: 2.0,
			},
		},
		Batch: BatchConfig{
			Concurrency: 10,
			MaxRows:     250,
		},
		Output: OutputConfig{
			Format: FormatCSV,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr:          ":8080",
			AllowedOrigin: "*",
			Auth: AuthConfig{
				SecretEnv: "FORM990_SHARED_SECRET",
				Realm:     "form990",
			},
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults.
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to YAML file.
func (c *Config) SaveConfig(filepath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Catalog.validate(); err != nil {
		return err
	}

	if c.Batch.Concurrency < 1 {
		return ErrInvalidConcurrency
	}

	if c.Batch.MaxRows < 1 {
		return ErrInvalidMaxRows
	}

	if c.Output.Format != FormatCSV && c.Output.Format != FormatXLSX {
		return ErrInvalidOutputFormat
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	if c.Server.Addr == "" {
		return ErrMissingServerAddr
	}

	if c.Server.Auth.Enabled && c.Server.Auth.SecretEnv == "" && c.Server.Auth.SecretFile == "" {
		return ErrMissingSecretSource
	}

	return nil
}

func (cc *CatalogConfig) validate() error {
	if cc.BaseURL == "" {
		return ErrMissingBaseURL
	}

	u, err := url.Parse(cc.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}

	if !strings.Contains(cc.LookupPath, "{ein}") {
		return ErrLookupPathPlaceholder
	}

	if !strings.Contains(cc.DownloadPath, "{object_id}") {
		return ErrDownloadPathPlaceholder
	}

	if cc.HandleMarker == "" {
		return ErrMissingHandleMarker
	}

	if cc.LookupTimeoutSec < 1 {
		return ErrInvalidLookupTimeout
	}

	if cc.FetchTimeoutSec < 1 {
		return ErrInvalidFetchTimeout
	}

	if cc.MaxDocumentKb < 1 {
		return ErrInvalidDocumentLimit
	}

	if cc.MaxPageKb < 1 {
		return ErrInvalidPageLimit
	}

	// Validate retry policy
	if cc.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if cc.Retry.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}

	if cc.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}

	return nil
}

// LookupTimeout returns the organization page request timeout.
func (cc *CatalogConfig) LookupTimeout() time.Duration {
	return time.Duration(cc.LookupTimeoutSec) * time.Second
}

// FetchTimeout returns the document download timeout.
func (cc *CatalogConfig) FetchTimeout() time.Duration {
	return time.Duration(cc.FetchTimeoutSec) * time.Second
}

// GetRetryDelay calculates exponential backoff delay for attempt number.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 2; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	// Cap at max delay
	if rp.MaxDelayMs > 0 && int(delayMs) > rp.MaxDelayMs {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(int(delayMs)) * time.Millisecond
}

// GetOutputPath returns the configured output path, or the dated default
// nonprofit_data_extract_<YYYY-MM-DD>.<format> when none is set.
func (c *Config) GetOutputPath(now time.Time) string {
	if c.Output.Path != "" {
		return c.Output.Path
	}

	return fmt.Sprintf("nonprofit_data_extract_%s.%s", now.Format("2006-01-02"), c.Output.Format)
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Catalog: %s, Concurrency: %d, MaxRows: %d, Output: %s}",
		c.Catalog.BaseURL,
		c.Batch.Concurrency,
		c.Batch.MaxRows,
		c.Output.Format,
	)
}
