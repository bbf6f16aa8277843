package catalog

import (
	"errors"
	"net/url"
	"strings"

	"form990/internal/config"
	"form990/internal/models"
)

// ErrEmptyHandle is returned when a download URL is requested for an empty handle.
var ErrEmptyHandle = errors.New("empty document handle")

// URLBuilder expands the catalog's lookup and download templates.
type URLBuilder struct {
	base         string
	lookupPath   string
	downloadPath string
}

// NewURLBuilder creates a builder from the catalog configuration.
func NewURLBuilder(cfg *config.CatalogConfig) *URLBuilder {
	return &URLBuilder{
		base:         strings.TrimRight(cfg.BaseURL, "/"),
		lookupPath:   cfg.LookupPath,
		downloadPath: cfg.DownloadPath,
	}
}

// LookupURL returns the organization page for ein.
func (b *URLBuilder) LookupURL(ein string) string {
	return b.base + strings.ReplaceAll(b.lookupPath, "{ein}", url.PathEscape(ein))
}

// DownloadURL returns the document download address for handle.
func (b *URLBuilder) DownloadURL(handle models.DocumentHandle) (string, error) {
	if handle == "" {
		return "", ErrEmptyHandle
	}

	return b.base + strings.ReplaceAll(b.downloadPath, "{object_id}", url.QueryEscape(string(handle))), nil
}
