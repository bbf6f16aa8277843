package catalog

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"form990/internal/config"
	"form990/internal/logger"
	"form990/internal/models"
)

// Endpoint labels for upstream metrics.
const (
	EndpointLookup   = "lookup"
	EndpointDownload = "download"
)

// Resolver maps an (organization, fiscal year) request to a document handle.
type Resolver struct {
	scraper    *Scraper
	urls       *URLBuilder
	marker     string
	yearOffset int
	timeout    time.Duration
	limitKb    int
	logger     *logger.Logger
}

// NewResolver creates a resolver. A nil logger disables logging.
func NewResolver(scraper *Scraper, cfg *config.CatalogConfig, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Discard()
	}

	return &Resolver{
		scraper:    scraper,
		urls:       NewURLBuilder(cfg),
		marker:     cfg.HandleMarker,
		yearOffset: cfg.FilingYearOffset,
		timeout:    cfg.LookupTimeout(),
		limitKb:    cfg.MaxPageKb,
		logger:     log,
	}
}

// Resolve returns the first handle on the organization page whose prefix is the
// filing year. Every failure, including lookup errors, is reported as models.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, req models.Request) (models.DocumentHandle, error) {
	fiscalYear, err := req.FiscalYear()
	if err != nil {
		return "", fmt.Errorf("%w: invalid year %q", models.ErrNotFound, req.Year)
	}

	if !req.ValidEIN() {
		return "", fmt.Errorf("%w: invalid EIN %q", models.ErrNotFound, req.EIN)
	}

	lookupURL := r.urls.LookupURL(req.EIN)

	page, status, duration, err := r.scraper.Get(ctx, EndpointLookup, lookupURL, r.timeout, r.limitKb)
	if err != nil {
		r.logger.Debug("Organization lookup failed",
			"ein", req.EIN, "url", lookupURL, "status", status, "error", err)

		return "", fmt.Errorf("%w: lookup failed: %w", models.ErrNotFound, err)
	}

	handles := ExtractHandles(page, r.marker)
	prefix := FilingYearPrefix(fiscalYear, r.yearOffset)

	handle, ok := SelectHandle(handles, prefix)
	if !ok {
		r.logger.Debug("No handle for filing year",
			"ein", req.EIN, "prefix", prefix, "candidates", len(handles), "duration", duration)

		return "", fmt.Errorf("%w: no %s filing among %d documents", models.ErrNotFound, prefix, len(handles))
	}

	return handle, nil
}

// FilingYearPrefix is the handle prefix for filings about fiscalYear.
func FilingYearPrefix(fiscalYear, offset int) string {
	return strconv.Itoa(fiscalYear + offset)
}

// SelectHandle returns the first handle starting with prefix.
func SelectHandle(handles []models.DocumentHandle, prefix string) (models.DocumentHandle, bool) {
	for _, h := range handles {
		if strings.HasPrefix(string(h), prefix) {
			return h, true
		}
	}

	return "", false
}

// ExtractHandles collects, in page order, the handles of every anchor whose
// href contains marker. The handle ends at the next '&' or '#'.
func ExtractHandles(page []byte, marker string) []models.DocumentHandle {
	var handles []models.DocumentHandle

	z := html.NewTokenizer(bytes.NewReader(page))

	for {
		switch z.Next() {
		case html.ErrorToken:
			return handles
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}

			if h, ok := handleFromAnchor(z, marker); ok {
				handles = append(handles, h)
			}
		}
	}
}

func handleFromAnchor(z *html.Tokenizer, marker string) (models.DocumentHandle, bool) {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "href" {
			return handleFromHref(string(val), marker)
		}

		if !more {
			return "", false
		}
	}
}

func handleFromHref(href, marker string) (models.DocumentHandle, bool) {
	idx := strings.Index(href, marker)
	if idx < 0 {
		return "", false
	}

	rest := href[idx+len(marker):]
	if cut := strings.IndexAny(rest, "&#"); cut >= 0 {
		rest = rest[:cut]
	}

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", false
	}

	return models.DocumentHandle(rest), true
}
