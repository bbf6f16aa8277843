package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"form990/internal/auth"
	"form990/internal/config"
	"form990/internal/models"
	"form990/internal/table"
)

type fakeRunner struct {
	maxRows int
	got     []models.Request
	result  *models.BatchResult
	err     error
}

func (f *fakeRunner) Run(_ context.Context, reqs []models.Request, _ chan<- models.Event) (*models.BatchResult, error) {
	f.got = reqs

	return f.result, f.err
}

func (f *fakeRunner) MaxRows() int {
	return f.maxRows
}

func okRunner() *fakeRunner {
	rec := models.NewRecord(3)
	rec.Set("TaxYr", "2022")
	rec.Set("Ein", "123456789")
	rec.Set("OrganizationName", "Example, Inc.")

	return &fakeRunner{
		maxRows: 250,
		result: &models.BatchResult{
			RunID:   "run-1",
			Records: []*models.Record{rec},
			Table:   table.Shape([]*models.Record{rec}),
		},
	}
}

func newTestServer(runner Runner, authMW *auth.Middleware) http.Handler {
	return New(runner, config.Default().Server, authMW, nil).Handler()
}

func post(t *testing.T, h http.Handler, target, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestExtract_ReturnsCSVAttachment(t *testing.T) {
	runner := okRunner()
	h := newTestServer(runner, nil)

	rec := post(t, h, "/", "text/csv", []byte("ein,year\n12-3456789,2022\n"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="nonprofit_data_extract.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "run-1", rec.Header().Get("X-Run-Id"))

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Ein", "OrganizationName", "TaxYr"}, rows[0])
	assert.Equal(t, []string{"123456789", "Example, Inc.", "2022"}, rows[1])

	require.Len(t, runner.got, 1)
	assert.Equal(t, "123456789", runner.got[0].EIN)
}

func TestExtract_XLSXOutput(t *testing.T) {
	h := newTestServer(okRunner(), nil)

	rec := post(t, h, "/extract?format=xlsx", "text/csv", []byte("ein,year\n123456789,2022\n"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "nonprofit_data_extract.xlsx")

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)

	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(table.SheetName)
	require.NoError(t, err)
	assert.Equal(t, "Ein", rows[0][0])
}

func TestExtract_MultipartUpload(t *testing.T) {
	runner := okRunner()
	h := newTestServer(runner, nil)

	var body bytes.Buffer

	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "targets.csv")
	require.NoError(t, err)

	_, err = part.Write([]byte("EIN,Year\n987654321,2021\n111111111,2020\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := post(t, h, "/extract", mw.FormDataContentType(), body.Bytes())

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, runner.got, 2)
}

func TestExtract_StatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		runner   *fakeRunner
		body     string
		format   string
		wantCode int
		wantBody string
	}{
		{
			name:     "missing columns",
			runner:   okRunner(),
			body:     "organization,year\nx,2020\n",
			wantCode: http.StatusBadRequest,
			wantBody: "must contain 'ein' and 'year' columns",
		},
		{
			name:     "unreadable csv",
			runner:   okRunner(),
			body:     "ein,year\n\"broken,2020\n",
			wantCode: http.StatusBadRequest,
			wantBody: "Invalid CSV data provided",
		},
		{
			name:     "over row cap",
			runner:   &fakeRunner{maxRows: 1},
			body:     "ein,year\n1,2020\n2,2020\n",
			wantCode: http.StatusRequestEntityTooLarge,
			wantBody: "no more than 1 entries",
		},
		{
			name:     "over row cap with bad headers",
			runner:   &fakeRunner{maxRows: 1},
			body:     "organization,year\nx,2020\ny,2020\n",
			wantCode: http.StatusRequestEntityTooLarge,
			wantBody: "no more than 1 entries",
		},
		{
			name:     "empty result",
			runner:   &fakeRunner{maxRows: 250, result: &models.BatchResult{}, err: models.ErrEmptyResult},
			body:     "ein,year\n1,2020\n",
			wantCode: http.StatusNotFound,
			wantBody: "no data could be extracted",
		},
		{
			name:     "runner failure",
			runner:   &fakeRunner{maxRows: 250, err: fmt.Errorf("batch interrupted: %w", context.Canceled)},
			body:     "ein,year\n1,2020\n",
			wantCode: http.StatusInternalServerError,
			wantBody: "Batch processing failed",
		},
		{
			name:     "unknown format",
			runner:   okRunner(),
			body:     "ein,year\n1,2020\n",
			format:   "json",
			wantCode: http.StatusBadRequest,
			wantBody: "Unsupported output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/extract"
			if tt.format != "" {
				target += "?format=" + tt.format
			}

			rec := post(t, newTestServer(tt.runner, nil), target, "text/csv", []byte(tt.body))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestExtract_OverCapNeverRuns(t *testing.T) {
	runner := &fakeRunner{maxRows: 2}

	rec := post(t, newTestServer(runner, nil), "/extract", "", []byte("ein,year\n1,2020\n2,2020\n3,2020\n"))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Nil(t, runner.got)
}

func TestExtract_Methods(t *testing.T) {
	h := newTestServer(okRunner(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/extract", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/extract", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Allow"))
}

func TestExtract_Authentication(t *testing.T) {
	authMW := auth.NewMiddleware(auth.NewSecretStore(auth.StaticSource("s3cret")), "form990", nil)
	h := newTestServer(okRunner(), authMW)

	rec := post(t, h, "/extract", "text/csv", []byte("ein,year\n1,2020\n"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="form990"`, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader("ein,year\n1,2020\n"))
	req.Header.Set("Authorization", "Bearer s3cret")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Preflight stays unauthenticated.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/extract", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(okRunner(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
