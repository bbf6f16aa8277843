package catalog

import (
	"net/http"

	"form990/internal/config"
	"form990/internal/logger"
)

// Client bundles a Resolver and a Fetcher that share one Scraper.
type Client struct {
	*Resolver
	*Fetcher
}

// NewClient creates a catalog client with a default HTTP client.
func NewClient(cfg *config.CatalogConfig, log *logger.Logger) *Client {
	return NewClientWithHTTP(&http.Client{}, cfg, log)
}

// NewClientWithHTTP creates a catalog client that sends requests through httpClient.
func NewClientWithHTTP(httpClient *http.Client, cfg *config.CatalogConfig, log *logger.Logger) *Client {
	scraper := NewScraperWithClient(httpClient, cfg)

	return &Client{
		Resolver: NewResolver(scraper, cfg, log),
		Fetcher:  NewFetcher(scraper, cfg, log),
	}
}
