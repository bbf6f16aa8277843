// Package table reads batch input tables and shapes, then writes, the output table.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"form990/internal/models"
)

// Required input columns.
const (
	ColumnEIN  = "ein"
	ColumnYear = "year"
)

// ErrUnsupportedFormat is returned for input files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported input format")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadRequestsCSV parses a CSV table with "ein" and "year" columns. Blank rows
// are skipped. More than maxRows rows fails with models.ErrTooManyRows; a
// maxRows of 0 disables the cap.
func ReadRequestsCSV(r io.Reader, maxRows int) ([]models.Request, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidBatchInput, err)
	}

	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable CSV: %w", models.ErrInvalidBatchInput, err)
	}

	return requestsFromRows(rows, maxRows)
}

// ReadRequestsXLSX parses the first sheet of a workbook the same way as ReadRequestsCSV.
func ReadRequestsXLSX(r io.Reader, maxRows int) ([]models.Request, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable workbook: %w", models.ErrInvalidBatchInput, err)
	}

	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", models.ErrInvalidBatchInput)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidBatchInput, err)
	}

	return requestsFromRows(rows, maxRows)
}

// ReadRequestsFile picks the reader by file extension.
func ReadRequestsFile(path string, maxRows int) ([]models.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return ReadRequestsCSV(f, maxRows)
	case ".xlsx", ".xlsm":
		return ReadRequestsXLSX(f, maxRows)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func requestsFromRows(rows [][]string, maxRows int) ([]models.Request, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s, %s", models.ErrMissingColumns, ColumnEIN, ColumnYear)
	}

	if maxRows > 0 {
		n := 0

		for _, row := range rows[1:] {
			if !isBlank(row) {
				n++
			}
		}

		if n > maxRows {
			return nil, fmt.Errorf("%w: more than %d rows", models.ErrTooManyRows, maxRows)
		}
	}

	einCol, yearCol := -1, -1

	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case ColumnEIN:
			if einCol < 0 {
				einCol = i
			}
		case ColumnYear:
			if yearCol < 0 {
				yearCol = i
			}
		}
	}

	if einCol < 0 || yearCol < 0 {
		return nil, fmt.Errorf("%w: %s, %s", models.ErrMissingColumns, ColumnEIN, ColumnYear)
	}

	requests := make([]models.Request, 0, len(rows)-1)

	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}

		requests = append(requests, models.NewRequest(i+1, cell(row, einCol), cell(row, yearCol)))
	}

	return requests, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}

	return ""
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}

	return true
}
