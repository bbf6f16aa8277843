package batch

import (
	"fmt"
	"time"

	"form990/internal/logger"
	"form990/internal/models"
)

func newEvent(runID string, o models.Outcome, completed, total int) models.Event {
	evt := models.Event{
		Time:      time.Now(),
		RunID:     runID,
		Request:   o.Request,
		Status:    o.Status,
		Completed: completed,
		Total:     total,
		Duration:  o.Duration,
	}

	if o.Err != nil {
		evt.Reason = o.Err.Error()
	}

	evt.Message = Message(o.Status, o.Request, evt.Reason)

	return evt
}

// Message renders the human readable progress line for an outcome.
func Message(status models.Status, req models.Request, reason string) string {
	switch status {
	case models.StatusSuccess:
		return "Success: " + req.String()
	case models.StatusNotFound:
		return fmt.Sprintf("No downloadable e-file record found for %s.", req)
	case models.StatusDownloadFailed:
		return fmt.Sprintf("Warning: Download failed for EIN %s. Reason: %s", req.EIN, reason)
	default:
		return fmt.Sprintf("Warning: An unexpected error occurred for EIN %s. Reason: %s", req.EIN, reason)
	}
}

func logOutcome(log *logger.Logger, evt models.Event, o models.Outcome) {
	args := []any{
		"ein", o.Request.EIN,
		"year", o.Request.Year,
		"status", o.Status,
		"progress", fmt.Sprintf("%d/%d", evt.Completed, evt.Total),
		"duration", o.Duration,
	}

	switch o.Status {
	case models.StatusSuccess:
		log.Info("Filing extracted", append(args, "handle", o.Handle)...)
	case models.StatusNotFound:
		log.Info("Filing not found", append(args, "reason", evt.Reason)...)
	default:
		log.Warn("Filing failed", append(args, "handle", o.Handle, "reason", evt.Reason)...)
	}
}
