package catalog

import (
	"context"
	"fmt"
	"time"

	"form990/internal/config"
	"form990/internal/logger"
	"form990/internal/models"
)

// Fetcher downloads filing documents by handle.
type Fetcher struct {
	scraper *Scraper
	urls    *URLBuilder
	timeout time.Duration
	limitKb int
	logger  *logger.Logger
}

// NewFetcher creates a fetcher. A nil logger disables logging.
func NewFetcher(scraper *Scraper, cfg *config.CatalogConfig, log *logger.Logger) *Fetcher {
	if log == nil {
		log = logger.Discard()
	}

	return &Fetcher{
		scraper: scraper,
		urls:    NewURLBuilder(cfg),
		timeout: cfg.FetchTimeout(),
		limitKb: cfg.MaxDocumentKb,
		logger:  log,
	}
}

// Fetch downloads the raw document. Any failure wraps models.ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, handle models.DocumentHandle) (models.RawDocument, error) {
	downloadURL, err := f.urls.DownloadURL(handle)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, err)
	}

	body, status, duration, err := f.scraper.Get(ctx, EndpointDownload, downloadURL, f.timeout, f.limitKb)
	if err != nil {
		f.logger.Debug("Document download failed",
			"handle", handle, "status", status, "duration", duration, "error", err)

		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, err)
	}

	f.logger.Debug("Document downloaded", "handle", handle, "bytes", len(body), "duration", duration)

	return models.RawDocument(body), nil
}
