// Package server exposes the batch pipeline as an HTTP endpoint that accepts
// an input table and answers with the extracted table as an attachment.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"form990/internal/auth"
	"form990/internal/config"
	"form990/internal/logger"
	"form990/internal/metrics"
	"form990/internal/models"
	"form990/internal/table"
)

// MaxBodyBytes bounds the accepted request body.
const MaxBodyBytes = 10 << 20

// Response content.
const (
	AttachmentName  = "nonprofit_data_extract"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Runner executes a batch.
type Runner interface {
	Run(ctx context.Context, reqs []models.Request, progress chan<- models.Event) (*models.BatchResult, error)
	MaxRows() int
}

// Server routes batch submissions to a Runner.
type Server struct {
	runner        Runner
	allowedOrigin string
	auth          *auth.Middleware
	logger        *logger.Logger
}

// New creates a server. A nil auth middleware leaves the endpoint open.
func New(runner Runner, cfg config.ServerConfig, authMW *auth.Middleware, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}

	origin := cfg.AllowedOrigin
	if origin == "" {
		origin = "*"
	}

	return &Server{
		runner:        runner,
		allowedOrigin: origin,
		auth:          authMW,
		logger:        log,
	}
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	var extract http.Handler = http.HandlerFunc(s.handleExtract)
	if s.auth != nil {
		extract = s.auth.Wrap(extract)
	}

	extract = CORSMiddleware(s.allowedOrigin, extract)

	mux := http.NewServeMux()
	mux.Handle("/extract", extract)
	mux.Handle("/{$}", extract)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("GET /metrics", metrics.Handler())

	return LoggingMiddleware(s.logger, mux)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)

		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)

		return
	}

	format := config.FormatCSV
	if f := r.URL.Query().Get("format"); f != "" {
		format = strings.ToLower(f)
	}

	if format != config.FormatCSV && format != config.FormatXLSX {
		http.Error(w, fmt.Sprintf("Unsupported output format %q", format), http.StatusBadRequest)

		return
	}

	reqs, err := s.readRequests(w, r)
	if err != nil {
		s.writeInputError(w, err)

		return
	}

	s.logger.Info("Received batch", "records", len(reqs), "remote", r.RemoteAddr)

	result, err := s.runner.Run(r.Context(), reqs, nil)

	switch {
	case errors.Is(err, models.ErrEmptyResult):
		http.Error(w, "Process finished, but no data could be extracted from the provided filings.", http.StatusNotFound)

		return
	case errors.Is(err, models.ErrInvalidBatchInput):
		s.writeInputError(w, err)

		return
	case err != nil:
		s.logger.Error("Batch failed", "error", err)
		http.Error(w, "Batch processing failed", http.StatusInternalServerError)

		return
	}

	var buf bytes.Buffer
	if err := table.Write(&buf, result.Table, format); err != nil {
		s.logger.Error("Failed to encode output", "run_id", result.RunID, "error", err)
		http.Error(w, "Failed to encode output", http.StatusInternalServerError)

		return
	}

	contentType := "text/csv"
	if format == config.FormatXLSX {
		contentType = ContentTypeXLSX
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", AttachmentName+"."+format))
	w.Header().Set("X-Run-Id", result.RunID)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Warn("Failed to write response", "run_id", result.RunID, "error", err)
	}
}

// readRequests decodes the body as CSV or XLSX. Multipart uploads are read
// from their "file" part.
func (s *Server) readRequests(w http.ResponseWriter, r *http.Request) ([]models.Request, error) {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	maxRows := s.runner.MaxRows()

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case mediaType == "multipart/form-data":
		r.Body = body

		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrInvalidBatchInput, err)
		}

		defer func() { _ = file.Close() }()

		if isWorkbook(header.Filename, header.Header.Get("Content-Type")) {
			return table.ReadRequestsXLSX(file, maxRows)
		}

		return table.ReadRequestsCSV(file, maxRows)
	case isWorkbook("", mediaType):
		return table.ReadRequestsXLSX(body, maxRows)
	default:
		return table.ReadRequestsCSV(body, maxRows)
	}
}

func isWorkbook(filename, contentType string) bool {
	ext := strings.ToLower(filepath.Ext(filename))

	return ext == ".xlsx" || ext == ".xlsm" || strings.HasPrefix(contentType, ContentTypeXLSX)
}

func (s *Server) writeInputError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytesErr):
		http.Error(w, fmt.Sprintf("Error: Request body exceeds %d bytes.", maxBytesErr.Limit), http.StatusRequestEntityTooLarge)
	case errors.Is(err, models.ErrTooManyRows):
		http.Error(w, fmt.Sprintf(
			"Error: The file has too many rows. Please provide a file with no more than %d entries.",
			s.runner.MaxRows()), http.StatusRequestEntityTooLarge)
	case errors.Is(err, models.ErrMissingColumns):
		http.Error(w, "Error: Invalid CSV format. The file must contain 'ein' and 'year' columns.", http.StatusBadRequest)
	default:
		s.logger.Debug("Rejected batch input", "error", err)
		http.Error(w, fmt.Sprintf("Invalid CSV data provided: %v", err), http.StatusBadRequest)
	}
}
