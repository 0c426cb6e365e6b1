package dto

import (
	"time"

	"github.com/textwave/textwave/models"
)

// ColumnMappingRequest is an explicit column assignment supplied with an
// upload to bypass heuristic detection.
type ColumnMappingRequest struct {
	PhoneColumn       string   `json:"phone_column" validate:"required,min=1,max=255"`
	NameColumn        string   `json:"name_column,omitempty" validate:"omitempty,max=255"`
	TagColumns        []string `json:"tag_columns,omitempty" validate:"omitempty,max=50,dive,min=1,max=255"`
	SkipInvalidPhones bool     `json:"skip_invalid_phones,omitempty"`
}

// ImportJobResponse is the API shape of an import job.
type ImportJobResponse struct {
	UUID          string                   `json:"uuid"`
	Filename      string                   `json:"filename"`
	FileSize      int64                    `json:"file_size"`
	SHA256        string                   `json:"sha256,omitempty"`
	Status        string                   `json:"status"`
	RowsTotal     int64                    `json:"rows_total"`
	RowsProcessed int64                    `json:"rows_processed"`
	ErrorCount    int64                    `json:"error_count"`
	Errors        []models.ImportError     `json:"errors,omitempty"`
	Metadata      models.ImportJobMetadata `json:"metadata"`
	StartedAt     *time.Time               `json:"started_at,omitempty"`
	CompletedAt   *time.Time               `json:"completed_at,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
}

// NewImportJobResponse maps a job model onto the API shape.
func NewImportJobResponse(job *models.ImportJob) *ImportJobResponse {
	return &ImportJobResponse{
		UUID:          job.UUID.String(),
		Filename:      job.Filename,
		FileSize:      job.FileSize,
		SHA256:        job.SHA256,
		Status:        job.Status.String(),
		RowsTotal:     job.RowsTotal,
		RowsProcessed: job.RowsProcessed,
		ErrorCount:    job.ErrorCount,
		Errors:        job.Errors,
		Metadata:      job.Metadata,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
		CreatedAt:     job.CreatedAt,
	}
}
