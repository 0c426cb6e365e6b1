package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageStatus represents the delivery state of a single outbound message
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusDelivered MessageStatus = "delivered"
)

// String returns the string representation of the status
func (s MessageStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusPending, MessageStatusSent, MessageStatusFailed, MessageStatusDelivered:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for MessageStatus
func (s *MessageStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = MessageStatus(v)
	case []byte:
		*s = MessageStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for MessageStatus
func (s MessageStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid MessageStatus: %s", s)
	}
	return string(s), nil
}

// MessageMeta is free-form provider metadata attached to a message
type MessageMeta map[string]any

// Value implements the driver.Valuer interface for MessageMeta
func (m MessageMeta) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(map[string]any{})
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for MessageMeta
func (m *MessageMeta) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into MessageMeta", value)
	}

	return json.Unmarshal(bytes, m)
}

// Message represents one outbound message of a campaign. The composite
// unique index on (campaign_id, phone_number) makes the per-campaign dedup
// guarantee a database invariant rather than an application convention.
type Message struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	CustomID         uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:uk_messages_custom_id" json:"custom_id"`
	CampaignID       uint          `gorm:"not null;uniqueIndex:uk_messages_campaign_phone;index:idx_messages_campaign_id" json:"campaign_id"`
	PhoneNumber      string        `gorm:"size:20;not null;uniqueIndex:uk_messages_campaign_phone" json:"phone_number"`
	Text             string        `gorm:"type:text;not null" json:"text"`
	Status           MessageStatus `gorm:"type:message_status;not null;default:'pending';index:idx_messages_status" json:"status"`
	Reason           *string       `gorm:"size:500" json:"reason"`
	GatewayMessageID *string       `gorm:"size:100" json:"gateway_message_id"`
	MetaData         MessageMeta   `gorm:"type:jsonb" json:"meta_data"`
	SentAt           *time.Time    `json:"sent_at"`
	CreatedAt        time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for the Message model
func (Message) TableName() string {
	return "messages"
}

// MessageFilter represents filter criteria for message queries
type MessageFilter struct {
	ID          *uint          `json:"id,omitempty"`
	CustomID    *uuid.UUID     `json:"custom_id,omitempty"`
	CampaignID  *uint          `json:"campaign_id,omitempty"`
	PhoneNumber *string        `json:"phone_number,omitempty"`
	Status      *MessageStatus `json:"status,omitempty"`
	Limit       *int           `json:"limit,omitempty"`
	Offset      *int           `json:"offset,omitempty"`
}
