// Package extractor maps a filing document onto a flat record using a field schema.
package extractor

import (
	"errors"
	"fmt"
	"strings"

	"form990/internal/logger"
	"form990/internal/models"
	"form990/internal/schema"
)

// ErrNoValues means the document parsed but no schema field resolved.
var ErrNoValues = errors.New("no schema field resolved a value")

// addressSeparator joins the non-empty contractor address components.
const addressSeparator = ", "

// Extractor applies one schema to filing documents. It holds no mutable
// state and is safe for concurrent use.
type Extractor struct {
	schema *schema.Schema
	keys   []string
	logger *logger.Logger
}

// New creates an extractor for s. The schema is validated (and compiled) here.
func New(s *schema.Schema, log *logger.Logger) (*Extractor, error) {
	if s == nil {
		return nil, fmt.Errorf("extractor: %w", schema.ErrNoFields)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("extractor: %w", err)
	}

	return &Extractor{
		schema: s,
		keys:   s.Keys(),
		logger: log,
	}, nil
}

// Schema returns the schema the extractor was built with.
func (e *Extractor) Schema() *schema.Schema {
	return e.schema
}

// Keys returns the record key order every extracted record follows.
func (e *Extractor) Keys() []string {
	out := make([]string, len(e.keys))
	copy(out, e.keys)

	return out
}

// Extract parses raw and builds its record. Every failure, including a panic
// while walking the tree, is returned as an error wrapping models.ErrExtractionFailed.
func (e *Extractor) Extract(raw models.RawDocument) (rec *models.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = fmt.Errorf("%w: unexpected error: %v", models.ErrExtractionFailed, r)
		}
	}()

	doc, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrExtractionFailed, err)
	}

	if doc.Recovered != nil && e.logger != nil {
		e.logger.Debug("recovered from malformed markup", "elements", doc.Size(), "error", doc.Recovered)
	}

	rec = e.ExtractDocument(doc)
	if rec.NonEmpty() == 0 {
		return nil, fmt.Errorf("%w: %w", models.ErrExtractionFailed, ErrNoValues)
	}

	return rec, nil
}

// ExtractDocument builds the record for an already parsed document. Missing
// values are empty strings; the key set never depends on the document.
func (e *Extractor) ExtractDocument(doc *Document) *models.Record {
	rec := models.NewRecord(len(e.keys))

	for i := range e.schema.Fields {
		f := &e.schema.Fields[i]
		rec.Set(f.Name, FirstText(doc.Root, f.Compiled()))
	}

	e.extractContractors(doc, rec)

	return rec
}

func (e *Extractor) extractContractors(doc *Document, rec *models.Record) {
	group := &e.schema.Contractors
	if group.Max == 0 {
		return
	}

	nodes := Find(doc.Root, group.GroupPath())

	for i := 1; i <= group.Max; i++ {
		var name, services, compensation, address string

		if i <= len(nodes) {
			n := nodes[i-1]
			name = FirstText(n, group.NamePaths())
			services = FirstText(n, group.ServicesPaths())
			compensation = FirstText(n, group.CompensationPaths())
			address = composeAddress(n, group.AddressPaths())
		}

		rec.Set(schema.ContractorKey(i, "Name"), name)
		rec.Set(schema.ContractorKey(i, "Services"), services)
		rec.Set(schema.ContractorKey(i, "Compensation"), compensation)
		rec.Set(schema.ContractorKey(i, "Address"), address)
	}
}

// composeAddress joins the non-empty address components, skipping blanks entirely.
func composeAddress(n *Node, components [][]schema.Path) string {
	parts := make([]string, 0, len(components))

	for _, candidates := range components {
		if v := FirstText(n, candidates); v != "" {
			parts = append(parts, v)
		}
	}

	return strings.Join(parts, addressSeparator)
}
