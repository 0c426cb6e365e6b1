package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImportJobStatus represents the status of a contact import job
type ImportJobStatus string

const (
	ImportJobStatusPending    ImportJobStatus = "pending"
	ImportJobStatusProcessing ImportJobStatus = "processing"
	ImportJobStatusSuccess    ImportJobStatus = "success"
	ImportJobStatusFailed     ImportJobStatus = "failed"
	ImportJobStatusCancelled  ImportJobStatus = "cancelled"
)

// String returns the string representation of the status
func (s ImportJobStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s ImportJobStatus) Valid() bool {
	switch s {
	case ImportJobStatusPending, ImportJobStatusProcessing,
		ImportJobStatusSuccess, ImportJobStatusFailed, ImportJobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the job can no longer change state
func (s ImportJobStatus) IsTerminal() bool {
	return s == ImportJobStatusSuccess || s == ImportJobStatusFailed || s == ImportJobStatusCancelled
}

// Scan implements the sql.Scanner interface for ImportJobStatus
func (s *ImportJobStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ImportJobStatus(v)
	case []byte:
		*s = ImportJobStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ImportJobStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ImportJobStatus
func (s ImportJobStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ImportJobStatus: %s", s)
	}
	return string(s), nil
}

// ImportError is a single failed row recorded on the job. Column and Value
// identify the offending cell when the failure is tied to one.
type ImportError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// ImportErrorList is the JSON column holding the error sample
type ImportErrorList []ImportError

// Value implements the driver.Valuer interface for ImportErrorList
func (l ImportErrorList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]ImportError{})
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface for ImportErrorList
func (l *ImportErrorList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ImportErrorList", value)
	}

	return json.Unmarshal(bytes, l)
}

// ImportJobMetadata carries structural facts about the parsed file. It is a
// dedicated column so analysis results never share storage with row errors.
type ImportJobMetadata struct {
	Encoding        string   `json:"encoding,omitempty"`
	Delimiter       string   `json:"delimiter,omitempty"`
	PhoneColumn     *string  `json:"phone_column,omitempty"`
	NameColumn      *string  `json:"name_column,omitempty"`
	PhoneConfidence *float64 `json:"phone_confidence,omitempty"`
	NameConfidence  *float64 `json:"name_confidence,omitempty"`
	RowsSuccessful  int64    `json:"rows_successful"`
	MappingApplied  bool     `json:"mapping_applied,omitempty"`
}

// Value implements the driver.Valuer interface for ImportJobMetadata
func (m ImportJobMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for ImportJobMetadata
func (m *ImportJobMetadata) Scan(value any) error {
	if value == nil {
		*m = ImportJobMetadata{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ImportJobMetadata", value)
	}

	return json.Unmarshal(bytes, m)
}

// ImportJob represents a contact import job in the database
type ImportJob struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	UUID          uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uk_import_jobs_uuid" json:"uuid"`
	OwnerID       uint              `gorm:"not null;index:idx_import_jobs_owner_id" json:"owner_id"`
	Filename      string            `gorm:"size:255;not null" json:"filename"`
	FileSize      int64             `gorm:"not null;default:0" json:"file_size"`
	SHA256        string            `gorm:"size:64" json:"sha256"`
	Status        ImportJobStatus   `gorm:"type:import_job_status;not null;default:'pending';index:idx_import_jobs_status" json:"status"`
	RowsTotal     int64             `gorm:"not null;default:0" json:"rows_total"`
	RowsProcessed int64             `gorm:"not null;default:0" json:"rows_processed"`
	ErrorCount    int64             `gorm:"not null;default:0" json:"error_count"`
	Errors        ImportErrorList   `gorm:"type:jsonb" json:"errors"`
	Metadata      ImportJobMetadata `gorm:"type:jsonb" json:"metadata"`
	StartedAt     *time.Time        `json:"started_at"`
	CompletedAt   *time.Time        `json:"completed_at"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for the ImportJob model
func (ImportJob) TableName() string {
	return "import_jobs"
}

// ImportJobFilter represents filter criteria for import job queries
type ImportJobFilter struct {
	ID            *uint            `json:"id,omitempty"`
	UUID          *uuid.UUID       `json:"uuid,omitempty"`
	OwnerID       *uint            `json:"owner_id,omitempty"`
	Status        *ImportJobStatus `json:"status,omitempty"`
	SHA256        *string          `json:"sha256,omitempty"`
	CreatedAfter  *time.Time       `json:"created_after,omitempty"`
	CreatedBefore *time.Time       `json:"created_before,omitempty"`
}
