package models

import "time"

// Status classifies how a single request ended.
type Status string

// Per-item outcomes.
const (
	StatusSuccess        Status = "success"
	StatusNotFound       Status = "not-found"
	StatusDownloadFailed Status = "download-failed"
	StatusParseFailed    Status = "parse-failed"
)

// Statuses lists every item outcome in reporting order.
var Statuses = []Status{StatusSuccess, StatusNotFound, StatusDownloadFailed, StatusParseFailed}

// Event is a progress notification emitted once per completed request.
type Event struct {
	Time      time.Time     `json:"time"`
	RunID     string        `json:"runId"`
	Request   Request       `json:"request"`
	Status    Status        `json:"status"`
	Message   string        `json:"message"`
	Reason    string        `json:"reason,omitempty"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Duration  time.Duration `json:"duration"`
}

// Percent returns the share of completed requests in the range 0..100.
func (e Event) Percent() float64 {
	if e.Total == 0 {
		return 100
	}

	return float64(e.Completed) / float64(e.Total) * 100
}

// Outcome pairs a request with its result. Record is nil unless Status is StatusSuccess.
type Outcome struct {
	Request  Request
	Handle   DocumentHandle
	Record   *Record
	Status   Status
	Err      error
	Duration time.Duration
}

// BatchResult is what a completed batch hands back to its caller.
type BatchResult struct {
	RunID string
	// Records are in completion order.
	Records  []*Record
	Outcomes []Outcome
	Counts   map[Status]int
	Table    *Table
	Duration time.Duration
}
