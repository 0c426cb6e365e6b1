// Package importer implements streaming CSV contact imports: file
// validation, encoding and delimiter sniffing, heuristic column detection,
// and chunked parsing with progress reporting.
package importer

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/textwave/textwave/models"
)

// ProgressEvent is the payload published while an import is running.
type ProgressEvent struct {
	Type                string               `json:"type"`
	JobID               uuid.UUID            `json:"job_id"`
	Processed           int64                `json:"processed"`
	Successful          int64                `json:"successful"`
	TotalRows           int64                `json:"total_rows"`
	Percent             float64              `json:"percent"`
	Errors              []models.ImportError `json:"errors"`
	ErrorCount          int64                `json:"error_count"`
	HasCriticalErrors   bool                 `json:"has_critical_errors"`
	EstimatedCompletion string               `json:"estimated_completion"`
	ProcessingRate      float64              `json:"processing_rate"`
}

// ProgressSink receives progress events. Implementations must tolerate
// bursts and are allowed to drop events, the import never blocks on a sink.
type ProgressSink interface {
	Publish(ctx context.Context, event ProgressEvent) error
}

// LogProgressSink writes progress events to a logger. It is the fallback
// sink when no cache is configured.
type LogProgressSink struct {
	Logger *log.Logger
}

func (s *LogProgressSink) Publish(_ context.Context, e ProgressEvent) error {
	if s.Logger != nil {
		s.Logger.Printf("import %s: %d/%d rows (%.1f%%), %d errors, rate %.0f rows/s, eta %s",
			e.JobID, e.Processed, e.TotalRows, e.Percent, e.ErrorCount, e.ProcessingRate, e.EstimatedCompletion)
	}
	return nil
}
