package businessflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textwave/textwave/app/services"
	"github.com/textwave/textwave/models"
	fixtures "github.com/textwave/textwave/testing"
	"github.com/textwave/textwave/utils"
)

// rejectingAdapter fails one specific phone with a permanent rejection and
// forwards everything else to the mock.
type rejectingAdapter struct {
	inner       *services.MockGatewayAdapter
	rejectPhone string
}

func (a *rejectingAdapter) Send(ctx context.Context, msg services.OutboundMessage) (*services.GatewayReceipt, error) {
	if msg.To == a.rejectPhone {
		return nil, &services.FatalError{Err: errors.New("blocked number")}
	}
	return a.inner.Send(ctx, msg)
}

// authRejectAdapter refuses every send with a credentials failure.
type authRejectAdapter struct{}

func (a *authRejectAdapter) Send(context.Context, services.OutboundMessage) (*services.GatewayReceipt, error) {
	return nil, &services.AuthError{Err: errors.New("bad api key")}
}

// outageAdapter simulates a provider that is down for every request.
type outageAdapter struct{}

func (a *outageAdapter) Send(context.Context, services.OutboundMessage) (*services.GatewayReceipt, error) {
	return nil, &services.RetryableError{RetryAfter: time.Second, Err: errors.New("provider down")}
}

func newTestSender(campaigns *fakeCampaignRepo, messages *fakeMessageRepo, contacts *fakeContactRepo, adapter services.GatewayAdapter, threshold uint32) *CampaignSenderFlowImpl {
	breakers := services.NewBreakerFactory(adapter, threshold, time.Minute, nil)
	s := NewCampaignSenderFlow(nil, campaigns, messages, contacts, breakers, nil)
	s.delayBetweenSMS = time.Microsecond
	s.rateLimitDelay = 0
	s.delayBetweenChunk = 0
	return s
}

func seedContacts(t *testing.T, contacts *fakeContactRepo, importID uint, n int) []*models.Contact {
	t.Helper()
	out := fixtures.NewContacts(importID, n)
	for i, c := range out {
		c.Name = utils.ToPtr(fmt.Sprintf("Contact %d", i))
		c.Tags = models.ContactTags{"city": "Austin"}
		require.NoError(t, contacts.Save(context.Background(), c))
	}
	return out
}

func seedCampaign(t *testing.T, campaigns *fakeCampaignRepo, importID uint, virtual bool, text string) *models.Campaign {
	t.Helper()
	campaign := fixtures.NewCampaign(1, importID, 0)
	campaign.Status = models.CampaignStatusActive
	campaign.MessageText = text
	campaign.Settings.VirtualMessaging = virtual
	require.NoError(t, campaigns.Save(context.Background(), campaign))
	return campaign
}

func TestCampaignSenderVirtualRun(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	messages := newFakeMessageRepo()
	contacts := newFakeContactRepo()
	seeded := seedContacts(t, contacts, 1, 5)

	gateway := services.NewMockGatewayAdapter()
	sender := newTestSender(campaigns, messages, contacts, gateway, 5)
	campaign := seedCampaign(t, campaigns, 1, true, "Hi {{name}}, see you in {{city}}")

	require.NoError(t, sender.Run(context.Background(), campaign))

	stored, err := campaigns.ByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusCompleted, stored.Status)
	assert.Equal(t, int64(5), stored.TotalMessages)
	assert.Equal(t, int64(5), stored.SentCount)
	assert.Equal(t, int64(0), stored.FailedCount)
	assert.NotNil(t, stored.CompletedAt)

	assert.Len(t, gateway.Sent(), 5)

	first := messages.byPhone(seeded[0].Phone)
	require.NotNil(t, first)
	assert.Equal(t, models.MessageStatusSent, first.Status)
	assert.Equal(t, "Hi Contact 0, see you in Austin", first.Text)
	require.NotNil(t, first.GatewayMessageID)
	assert.NotNil(t, first.SentAt)
}

func TestCampaignSenderDuplicatePrevention(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	messages := newFakeMessageRepo()
	contacts := newFakeContactRepo()
	seeded := seedContacts(t, contacts, 1, 3)

	gateway := services.NewMockGatewayAdapter()
	sender := newTestSender(campaigns, messages, contacts, gateway, 5)
	campaign := seedCampaign(t, campaigns, 1, true, "hello")

	// A row left behind by an earlier interrupted run.
	existing := &models.Message{
		CustomID:    uuid.New(),
		CampaignID:  campaign.ID,
		PhoneNumber: seeded[0].Phone,
		Text:        "hello",
		Status:      models.MessageStatusSent,
	}
	require.NoError(t, messages.Save(context.Background(), existing))

	require.NoError(t, sender.Run(context.Background(), campaign))

	// The already-sent recipient is skipped, not re-sent.
	assert.Len(t, gateway.Sent(), 2)
	for _, sent := range gateway.Sent() {
		assert.NotEqual(t, seeded[0].Phone, sent.To)
	}

	total, err := messages.CountByCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestCampaignSenderErrorIsolation(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	messages := newFakeMessageRepo()
	contacts := newFakeContactRepo()
	seeded := seedContacts(t, contacts, 1, 4)

	adapter := &rejectingAdapter{inner: services.NewMockGatewayAdapter(), rejectPhone: seeded[1].Phone}
	sender := newTestSender(campaigns, messages, contacts, adapter, 5)
	campaign := seedCampaign(t, campaigns, 1, true, "hello")

	require.NoError(t, sender.Run(context.Background(), campaign))

	stored, err := campaigns.ByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusCompleted, stored.Status)
	assert.Equal(t, int64(4), stored.TotalMessages)
	assert.Equal(t, int64(3), stored.SentCount)
	assert.Equal(t, int64(1), stored.FailedCount)

	rejected := messages.byPhone(seeded[1].Phone)
	require.NotNil(t, rejected)
	assert.Equal(t, models.MessageStatusFailed, rejected.Status)
	require.NotNil(t, rejected.Reason)
	assert.Contains(t, *rejected.Reason, "blocked number")
}

func TestCampaignSenderAuthFailureHalts(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	messages := newFakeMessageRepo()
	contacts := newFakeContactRepo()
	seedContacts(t, contacts, 1, 3)

	sender := newTestSender(campaigns, messages, contacts, &authRejectAdapter{}, 10)
	campaign := seedCampaign(t, campaigns, 1, true, "hello")

	err := sender.Run(context.Background(), campaign)
	assert.ErrorIs(t, err, ErrGatewayAuthFailed)
	assert.True(t, IsGatewayAuthFailed(err))

	stored, repoErr := campaigns.ByID(context.Background(), campaign.ID)
	require.NoError(t, repoErr)
	assert.Equal(t, models.CampaignStatusPaused, stored.Status)
	require.NotNil(t, stored.Settings.PausedReason)
	assert.Contains(t, *stored.Settings.PausedReason, "credentials")

	// Rejected credentials never burn message rows; a resumed run retries
	// every recipient.
	assert.Empty(t, messages.all())
}

func TestCampaignSenderCircuitOpenPauses(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	messages := newFakeMessageRepo()
	contacts := newFakeContactRepo()
	seedContacts(t, contacts, 1, 5)

	sender := newTestSender(campaigns, messages, contacts, &outageAdapter{}, 1)
	sender.maxConcurrent = 1
	campaign := seedCampaign(t, campaigns, 1, true, "hello")

	err := sender.Run(context.Background(), campaign)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	stored, repoErr := campaigns.ByID(context.Background(), campaign.ID)
	require.NoError(t, repoErr)
	assert.Equal(t, models.CampaignStatusPaused, stored.Status)
	require.NotNil(t, stored.Settings.PausedReason)
	assert.Contains(t, *stored.Settings.PausedReason, "circuit")

	// Only attempts made before the circuit opened produced rows.
	recorded := messages.all()
	assert.NotEmpty(t, recorded)
	assert.Less(t, len(recorded), 5)
	for _, m := range recorded {
		assert.Equal(t, models.MessageStatusFailed, m.Status)
	}
}

func TestCampaignSenderCompletionRecount(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	messages := newFakeMessageRepo()
	contacts := newFakeContactRepo()
	seeded := seedContacts(t, contacts, 1, 3)

	gateway := services.NewMockGatewayAdapter()
	sender := newTestSender(campaigns, messages, contacts, gateway, 5)
	campaign := seedCampaign(t, campaigns, 1, true, "hello")

	// One recipient was already handled by an interrupted earlier run, so
	// this run only sends two. The completion recount must still report all
	// three as sent.
	require.NoError(t, messages.Save(context.Background(), &models.Message{
		CustomID:    uuid.New(),
		CampaignID:  campaign.ID,
		PhoneNumber: seeded[0].Phone,
		Text:        "hello",
		Status:      models.MessageStatusSent,
	}))

	require.NoError(t, sender.Run(context.Background(), campaign))

	stored, err := campaigns.ByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusCompleted, stored.Status)
	assert.Equal(t, int64(3), stored.TotalMessages)
	assert.Equal(t, int64(3), stored.SentCount)
	assert.Equal(t, int64(0), stored.FailedCount)
	assert.Len(t, gateway.Sent(), 2)
}

func TestCampaignSenderPendingRun(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	messages := newFakeMessageRepo()
	contacts := newFakeContactRepo()

	gateway := services.NewMockGatewayAdapter()
	sender := newTestSender(campaigns, messages, contacts, gateway, 5)
	campaign := seedCampaign(t, campaigns, 1, false, "hello")

	for i := 0; i < 4; i++ {
		require.NoError(t, messages.Save(context.Background(), &models.Message{
			CustomID:    uuid.New(),
			CampaignID:  campaign.ID,
			PhoneNumber: fmt.Sprintf("+1415555%04d", i),
			Text:        fmt.Sprintf("hello %d", i),
			Status:      models.MessageStatusPending,
		}))
	}

	require.NoError(t, sender.Run(context.Background(), campaign))

	stored, err := campaigns.ByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusCompleted, stored.Status)
	assert.Equal(t, int64(4), stored.TotalMessages)
	assert.Equal(t, int64(4), stored.SentCount)

	assert.Len(t, gateway.Sent(), 4)
	for _, m := range messages.all() {
		assert.Equal(t, models.MessageStatusSent, m.Status)
		assert.NotNil(t, m.GatewayMessageID)
	}
}

func TestCampaignSenderPendingAuthFailureKeepsRows(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	messages := newFakeMessageRepo()
	contacts := newFakeContactRepo()

	sender := newTestSender(campaigns, messages, contacts, &authRejectAdapter{}, 10)
	campaign := seedCampaign(t, campaigns, 1, false, "hello")

	require.NoError(t, messages.Save(context.Background(), &models.Message{
		CustomID:    uuid.New(),
		CampaignID:  campaign.ID,
		PhoneNumber: "+14155550000",
		Text:        "hello",
		Status:      models.MessageStatusPending,
	}))

	err := sender.Run(context.Background(), campaign)
	assert.ErrorIs(t, err, ErrGatewayAuthFailed)

	stored, repoErr := campaigns.ByID(context.Background(), campaign.ID)
	require.NoError(t, repoErr)
	assert.Equal(t, models.CampaignStatusPaused, stored.Status)

	// The pending row survives so the resumed run retries it.
	remaining, repoErr := messages.ListPendingByCampaignPaged(context.Background(), campaign.ID, 10)
	require.NoError(t, repoErr)
	assert.Len(t, remaining, 1)
}

func TestCampaignSenderStopsWhenNotActive(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	messages := newFakeMessageRepo()
	contacts := newFakeContactRepo()
	seedContacts(t, contacts, 1, 2)

	gateway := services.NewMockGatewayAdapter()
	sender := newTestSender(campaigns, messages, contacts, gateway, 5)
	campaign := seedCampaign(t, campaigns, 1, true, "hello")

	// Paused before the run observes the first chunk boundary.
	moved, err := campaigns.UpdateStatusFrom(context.Background(), campaign.ID,
		models.CampaignStatusActive, models.CampaignStatusPaused, nil)
	require.NoError(t, err)
	require.True(t, moved)

	require.NoError(t, sender.Run(context.Background(), campaign))
	assert.Empty(t, gateway.Sent())
	assert.Empty(t, messages.all())
}

func TestCampaignSenderMissingImport(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	messages := newFakeMessageRepo()
	contacts := newFakeContactRepo()

	sender := newTestSender(campaigns, messages, contacts, services.NewMockGatewayAdapter(), 5)
	campaign := &models.Campaign{
		UUID:        uuid.New(),
		UserID:      1,
		Name:        "broken",
		Status:      models.CampaignStatusActive,
		MessageText: "hello",
		Settings:    models.CampaignSettings{VirtualMessaging: true},
	}
	require.NoError(t, campaigns.Save(context.Background(), campaign))

	err := sender.Run(context.Background(), campaign)
	assert.ErrorIs(t, err, ErrCampaignImportRequired)

	stored, repoErr := campaigns.ByID(context.Background(), campaign.ID)
	require.NoError(t, repoErr)
	assert.Equal(t, models.CampaignStatusFailed, stored.Status)
}

func TestRenderMessageText(t *testing.T) {
	name := "Jane Doe"
	contact := &models.Contact{
		Phone: "+14155552671",
		Name:  &name,
		Tags:  models.ContactTags{"city": "Boise", "plan": "gold"},
	}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"name token", "Hi {{name}}!", "Hi Jane Doe!"},
		{"contact_name alias", "Dear {{contact_name}},", "Dear Jane Doe,"},
		{"phone token", "Verify {{phone}}", "Verify +14155552671"},
		{"tag tokens", "{{city}} / {{plan}}", "Boise / gold"},
		{"unknown token untouched", "Hi {{nickname}}", "Hi {{nickname}}"},
		{"no tokens", "plain text", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, renderMessageText(tt.template, contact))
		})
	}

	t.Run("nil name leaves name tokens", func(t *testing.T) {
		anon := &models.Contact{Phone: "+14155552672"}
		assert.Equal(t, "Hi {{name}}", renderMessageText("Hi {{name}}", anon))
	})
}
