package dto

import (
	"time"

	"github.com/textwave/textwave/models"
)

// CreateCampaignRequest represents the request to create a new campaign
type CreateCampaignRequest struct {
	Name          string `json:"name" validate:"required,min=1,max=255"`
	MessageText   string `json:"message_text" validate:"required,min=1,max=1000"`
	ImportJobUUID string `json:"import_job_uuid" validate:"required,uuid4"`
	// Virtual selects on-demand message generation (the default). A false
	// value materializes all messages at creation time.
	Virtual           *bool `json:"virtual,omitempty"`
	SkipInvalidPhones bool  `json:"skip_invalid_phones,omitempty"`
}

// IsVirtual resolves the Virtual flag, defaulting to true.
func (r *CreateCampaignRequest) IsVirtual() bool {
	return r.Virtual == nil || *r.Virtual
}

// CampaignResponse is the API shape of a campaign.
type CampaignResponse struct {
	UUID           string     `json:"uuid"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	MessageText    string     `json:"message_text"`
	TotalMessages  int64      `json:"total_messages"`
	SentCount      int64      `json:"sent_count"`
	FailedCount    int64      `json:"failed_count"`
	DeliveredCount int64      `json:"delivered_count"`
	ImportJobID    *uint      `json:"import_job_id,omitempty"`
	PausedReason   *string    `json:"paused_reason,omitempty"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// MessageResponse is the API shape of one outbound campaign message.
type MessageResponse struct {
	CustomID         string     `json:"custom_id"`
	PhoneNumber      string     `json:"phone_number"`
	Status           string     `json:"status"`
	Reason           *string    `json:"reason,omitempty"`
	GatewayMessageID *string    `json:"gateway_message_id,omitempty"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// NewMessageResponse maps a message model onto the API shape.
func NewMessageResponse(m *models.Message) *MessageResponse {
	return &MessageResponse{
		CustomID:         m.CustomID.String(),
		PhoneNumber:      m.PhoneNumber,
		Status:           m.Status.String(),
		Reason:           m.Reason,
		GatewayMessageID: m.GatewayMessageID,
		SentAt:           m.SentAt,
		CreatedAt:        m.CreatedAt,
	}
}

// NewCampaignResponse maps a campaign model onto the API shape.
func NewCampaignResponse(c *models.Campaign) *CampaignResponse {
	return &CampaignResponse{
		UUID:           c.UUID.String(),
		Name:           c.Name,
		Status:         c.Status.String(),
		MessageText:    c.MessageText,
		TotalMessages:  c.TotalMessages,
		SentCount:      c.SentCount,
		FailedCount:    c.FailedCount,
		DeliveredCount: c.DeliveredCount,
		ImportJobID:    c.Settings.ImportJobID,
		PausedReason:   c.Settings.PausedReason,
		ScheduledAt:    c.ScheduledAt,
		StartedAt:      c.StartedAt,
		CompletedAt:    c.CompletedAt,
		CreatedAt:      c.CreatedAt,
	}
}
