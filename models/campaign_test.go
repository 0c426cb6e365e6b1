package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCampaignStatusIsTerminal(t *testing.T) {
	assert.False(t, CampaignStatusDraft.IsTerminal())
	assert.False(t, CampaignStatusActive.IsTerminal())
	assert.False(t, CampaignStatusPaused.IsTerminal())
	assert.True(t, CampaignStatusCompleted.IsTerminal())
	assert.True(t, CampaignStatusCancelled.IsTerminal())
	assert.True(t, CampaignStatusFailed.IsTerminal())
}

func TestCampaignStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    CampaignStatus
		to      CampaignStatus
		allowed bool
	}{
		{"draft to active", CampaignStatusDraft, CampaignStatusActive, true},
		{"draft to cancelled", CampaignStatusDraft, CampaignStatusCancelled, true},
		{"draft to paused", CampaignStatusDraft, CampaignStatusPaused, false},
		{"draft to completed", CampaignStatusDraft, CampaignStatusCompleted, false},
		{"active to paused", CampaignStatusActive, CampaignStatusPaused, true},
		{"active to completed", CampaignStatusActive, CampaignStatusCompleted, true},
		{"active to failed", CampaignStatusActive, CampaignStatusFailed, true},
		{"active to cancelled", CampaignStatusActive, CampaignStatusCancelled, true},
		{"paused to active", CampaignStatusPaused, CampaignStatusActive, true},
		{"paused to cancelled", CampaignStatusPaused, CampaignStatusCancelled, true},
		{"paused to completed", CampaignStatusPaused, CampaignStatusCompleted, false},
		{"completed is terminal", CampaignStatusCompleted, CampaignStatusActive, false},
		{"cancelled is terminal", CampaignStatusCancelled, CampaignStatusActive, false},
		{"failed is terminal", CampaignStatusFailed, CampaignStatusActive, false},
		{"unknown target", CampaignStatusActive, CampaignStatus("archived"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestCampaignStatusValid(t *testing.T) {
	assert.True(t, CampaignStatusDraft.Valid())
	assert.True(t, CampaignStatusFailed.Valid())
	assert.False(t, CampaignStatus("archived").Valid())
	assert.False(t, CampaignStatus("").Valid())
}

func TestCampaignSettingsRoundTrip(t *testing.T) {
	jobID := uint(42)
	reason := "provider outage"
	settings := CampaignSettings{
		VirtualMessaging: true,
		ImportJobID:      &jobID,
		PausedReason:     &reason,
	}

	value, err := settings.Value()
	assert.NoError(t, err)

	var decoded CampaignSettings
	assert.NoError(t, decoded.Scan(value))
	assert.Equal(t, settings, decoded)

	var empty CampaignSettings
	assert.NoError(t, empty.Scan(nil))
	assert.Equal(t, CampaignSettings{}, empty)
}
