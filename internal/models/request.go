// Package models holds the data types shared across the filing pipeline.
package models

import (
	"strconv"
	"strings"
)

// Request is one (organization, fiscal year) lookup taken from an input row.
type Request struct {
	// Row is the 1-based data row the request came from (0 when unknown).
	Row  int    `json:"row"`
	EIN  string `json:"ein"`
	Year string `json:"year"`
}

// NewRequest normalizes the raw identifier and year cells of an input row.
func NewRequest(row int, ein, year string) Request {
	return Request{
		Row:  row,
		EIN:  NormalizeEIN(ein),
		Year: strings.TrimSpace(year),
	}
}

// NormalizeEIN trims the identifier and drops hyphens ("12-3456789" -> "123456789").
func NormalizeEIN(ein string) string {
	return strings.ReplaceAll(strings.TrimSpace(ein), "-", "")
}

// FiscalYear parses the requested reporting year.
func (r Request) FiscalYear() (int, error) {
	return strconv.Atoi(r.Year)
}

// ValidEIN reports whether the identifier is non-empty and all digits.
func (r Request) ValidEIN() bool {
	if r.EIN == "" {
		return false
	}

	for _, c := range r.EIN {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}

// String returns a short human readable label used in progress lines.
func (r Request) String() string {
	return "EIN " + r.EIN + ", Year " + r.Year
}

// DocumentHandle is the catalog-assigned token of one filing document (the object id).
type DocumentHandle string

// RawDocument is the undecoded XML payload of one filing.
type RawDocument []byte
