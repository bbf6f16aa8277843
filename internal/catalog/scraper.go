// Package catalog talks to the external filing catalog: it resolves an
// organization and fiscal year to a document handle and downloads the filing.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"form990/internal/config"
	"form990/internal/metrics"
)

// Scraper errors.
var (
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrResponseTooLarge     = errors.New("response exceeds size limit")
)

// Scraper performs GET requests with per-call timeouts, a body size limit and
// the configured retry policy.
type Scraper struct {
	client      *http.Client
	retryPolicy config.RetryPolicy
	userAgent   string
}

// NewScraper creates a scraper for the given catalog configuration.
func NewScraper(cfg *config.CatalogConfig) *Scraper {
	return NewScraperWithClient(&http.Client{}, cfg)
}

// NewScraperWithClient creates a scraper that sends requests through client.
func NewScraperWithClient(client *http.Client, cfg *config.CatalogConfig) *Scraper {
	policy := cfg.Retry
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	return &Scraper{
		client:      client,
		retryPolicy: policy,
		userAgent:   cfg.UserAgent,
	}
}

// Get fetches url and returns (body, statusCode, duration, error). Each attempt
// is bounded by timeout and at most limitKb kilobytes are accepted.
func (s *Scraper) Get(ctx context.Context, endpoint, url string, timeout time.Duration, limitKb int) ([]byte, int, time.Duration, error) {
	var lastErr error

	var lastStatusCode int

	totalDuration := time.Duration(0)

	for attempt := 1; attempt <= s.retryPolicy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, s.retryPolicy.GetRetryDelay(attempt)); err != nil {
				return nil, lastStatusCode, totalDuration, err
			}
		}

		startTime := time.Now()
		body, statusCode, err := s.get(ctx, url, timeout, limitKb)
		totalDuration += time.Since(startTime)

		metrics.ObserveUpstream(endpoint, statusCode)

		if err == nil {
			return body, statusCode, totalDuration, nil
		}

		lastErr = fmt.Errorf("request failed (attempt %d/%d): %w", attempt, s.retryPolicy.MaxAttempts, err)
		lastStatusCode = statusCode

		// Only retry transport errors and temporary statuses
		if statusCode != 0 && !isRetryableStatus(statusCode) {
			break
		}

		if errors.Is(err, ErrResponseTooLarge) || ctx.Err() != nil {
			break
		}
	}

	return nil, lastStatusCode, totalDuration, lastErr
}

func (s *Scraper) get(ctx context.Context, url string, timeout time.Duration, limitKb int) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	// Set user agent to avoid being blocked
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	// limitKb is in KB, convert to bytes and read one extra to detect overflow
	limit := int64(limitKb) * 1024
	reader := io.LimitReader(resp.Body, limit+1)

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(body)) > limit {
		return nil, resp.StatusCode, fmt.Errorf("%w: %d KB", ErrResponseTooLarge, limitKb)
	}

	return body, resp.StatusCode, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRetryableStatus determines if we should retry based on HTTP status code.
func isRetryableStatus(statusCode int) bool {
	// Retry on temporary failures
	switch statusCode {
	case http.StatusServiceUnavailable: // 503
		return true
	case http.StatusGatewayTimeout: // 504
		return true
	case http.StatusTooManyRequests: // 429
		return true
	case http.StatusRequestTimeout: // 408
		return true
	}

	return false
}
