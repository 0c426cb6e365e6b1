package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusActive, CampaignStatusPaused,
		CampaignStatusCompleted, CampaignStatusCancelled, CampaignStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the campaign can no longer change state
func (s CampaignStatus) IsTerminal() bool {
	switch s {
	case CampaignStatusCompleted, CampaignStatusCancelled, CampaignStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if the status can transition to the target status
func (s CampaignStatus) CanTransitionTo(target CampaignStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch target {
	case CampaignStatusActive:
		return s == CampaignStatusDraft || s == CampaignStatusPaused
	case CampaignStatusPaused:
		return s == CampaignStatusActive
	case CampaignStatusCompleted, CampaignStatusFailed:
		return s == CampaignStatusActive
	case CampaignStatusCancelled:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// CampaignSettings is the JSON settings column. A campaign with
// VirtualMessaging set drains the contacts of ImportJobID through the
// configured gateway.
type CampaignSettings struct {
	VirtualMessaging  bool    `json:"virtual_messaging,omitempty"`
	ImportJobID       *uint   `json:"import_job_id,omitempty"`
	SkipInvalidPhones bool    `json:"skip_invalid_phones,omitempty"`
	PausedReason      *string `json:"paused_reason,omitempty"`
}

// Value implements the driver.Valuer interface for CampaignSettings
func (s CampaignSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for CampaignSettings
func (s *CampaignSettings) Scan(value any) error {
	if value == nil {
		*s = CampaignSettings{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CampaignSettings", value)
	}

	return json.Unmarshal(bytes, s)
}

// Campaign represents an outbound messaging campaign in the database
type Campaign struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	UserID         uint             `gorm:"not null;index:idx_campaigns_user_id" json:"user_id"`
	Name           string           `gorm:"size:255;not null" json:"name"`
	Status         CampaignStatus   `gorm:"type:campaign_status;not null;default:'draft';index:idx_campaigns_status" json:"status"`
	MessageText    string           `gorm:"type:text;not null" json:"message_text"`
	TotalMessages  int64            `gorm:"not null;default:0" json:"total_messages"`
	SentCount      int64            `gorm:"not null;default:0" json:"sent_count"`
	FailedCount    int64            `gorm:"not null;default:0" json:"failed_count"`
	DeliveredCount int64            `gorm:"not null;default:0" json:"delivered_count"`
	Settings       CampaignSettings `gorm:"type:jsonb" json:"settings"`
	ScheduledAt    *time.Time       `json:"scheduled_at"`
	StartedAt      *time.Time       `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for the Campaign model
func (Campaign) TableName() string {
	return "campaigns"
}

// CampaignFilter represents filter criteria for campaign queries
type CampaignFilter struct {
	ID            *uint           `json:"id,omitempty"`
	UUID          *uuid.UUID      `json:"uuid,omitempty"`
	UserID        *uint           `json:"user_id,omitempty"`
	Status        *CampaignStatus `json:"status,omitempty"`
	CreatedAfter  *time.Time      `json:"created_after,omitempty"`
	CreatedBefore *time.Time      `json:"created_before,omitempty"`
	OrderBy       *string         `json:"order_by,omitempty"`
	Limit         *int            `json:"limit,omitempty"`
	Offset        *int            `json:"offset,omitempty"`
}
