package models

import (
	"errors"
	"fmt"
)

// Batch level errors.
var (
	ErrInvalidBatchInput = errors.New("invalid batch input")
	ErrTooManyRows       = fmt.Errorf("%w: too many rows", ErrInvalidBatchInput)
	ErrMissingColumns    = fmt.Errorf("%w: missing required columns", ErrInvalidBatchInput)
	ErrEmptyResult       = errors.New("process finished, but no data could be extracted")
)

// Item level errors.
var (
	ErrNotFound         = errors.New("no filing found")
	ErrFetchFailed      = errors.New("download failed")
	ErrExtractionFailed = errors.New("extraction failed")
)

// Classify maps an item error onto its Status. A nil error is a success.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ErrFetchFailed):
		return StatusDownloadFailed
	default:
		return StatusParseFailed
	}
}
