package businessflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/textwave/textwave/app/middleware"
	"github.com/textwave/textwave/app/services"
	"github.com/textwave/textwave/models"
	"github.com/textwave/textwave/repository"
	"github.com/textwave/textwave/utils"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// CampaignSenderFlow owns one campaign's processing from activation to a
// terminal or paused state. Virtual campaigns drain their import's contacts
// through a breaker-wrapped gateway, materializing a Message row per
// attempt; campaigns with pre-materialized messages drain their pending
// rows instead.
type CampaignSenderFlow interface {
	Run(ctx context.Context, campaign *models.Campaign) error
}

// CampaignSenderFlowImpl implements CampaignSenderFlow.
type CampaignSenderFlowImpl struct {
	db           *gorm.DB
	campaignRepo repository.CampaignRepository
	messageRepo  repository.MessageRepository
	contactRepo  repository.ContactRepository
	breakers     *services.BreakerFactory
	logger       *log.Logger

	microBatchSize    int
	maxConcurrent     int
	chunkSize         int
	delayBetweenSMS   time.Duration
	rateLimitDelay    time.Duration
	delayBetweenChunk time.Duration
}

// NewCampaignSenderFlow creates the sender with the default pacing.
func NewCampaignSenderFlow(
	db *gorm.DB,
	campaignRepo repository.CampaignRepository,
	messageRepo repository.MessageRepository,
	contactRepo repository.ContactRepository,
	breakers *services.BreakerFactory,
	logger *log.Logger,
) *CampaignSenderFlowImpl {
	return &CampaignSenderFlowImpl{
		db:                db,
		campaignRepo:      campaignRepo,
		messageRepo:       messageRepo,
		contactRepo:       contactRepo,
		breakers:          breakers,
		logger:            logger,
		microBatchSize:    utils.SenderMicroBatchSize,
		maxConcurrent:     utils.SenderMaxConcurrent,
		chunkSize:         utils.SenderChunkSize,
		delayBetweenSMS:   utils.SenderDelayBetweenSMS,
		rateLimitDelay:    utils.SenderRateLimitDelay,
		delayBetweenChunk: utils.SenderDelayBetweenChunks,
	}
}

// chunkResult accumulates one chunk's outcome under a mutex; micro-batch
// workers run concurrently.
type chunkResult struct {
	mu          sync.Mutex
	sent        int64
	failed      int64
	circuitOpen bool
	authFailed  bool
}

// Run dispatches on the campaign's messaging mode.
func (s *CampaignSenderFlowImpl) Run(ctx context.Context, campaign *models.Campaign) error {
	defer s.breakers.Release(campaign.UUID.String())
	gateway := s.breakers.ForCampaign(campaign.UUID.String())

	if campaign.Settings.VirtualMessaging {
		return s.runVirtual(ctx, campaign, gateway)
	}
	return s.runPending(ctx, campaign, gateway)
}

// runVirtual pages through the linked import's contacts, re-checking the
// campaign status before every chunk so pause and cancel take effect
// promptly. An open circuit or rejected credentials pause the campaign;
// running out of contacts completes it with an exact recount.
func (s *CampaignSenderFlowImpl) runVirtual(ctx context.Context, campaign *models.Campaign, gateway *services.BreakerGateway) error {
	importJobID := campaign.Settings.ImportJobID
	if importJobID == nil {
		s.failCampaign(ctx, campaign, "campaign has no import job configured")
		return ErrCampaignImportRequired
	}

	limiter := rate.NewLimiter(rate.Every(s.delayBetweenSMS), 1)
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		active, err := s.campaignStillActive(ctx, campaign)
		if err != nil {
			return err
		}
		if !active {
			return nil
		}

		contacts, err := s.contactRepo.ListByImportPaged(ctx, *importJobID, s.chunkSize, offset)
		if err != nil {
			s.failCampaign(ctx, campaign, fmt.Sprintf("failed to page contacts: %v", err))
			return err
		}
		if len(contacts) == 0 {
			return s.completeCampaign(ctx, campaign)
		}

		result := s.processChunk(ctx, campaign, gateway, limiter, contacts)
		if err := s.applyChunkResult(ctx, campaign, result); err != nil {
			return err
		}

		offset += len(contacts)

		select {
		case <-time.After(s.delayBetweenChunk):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runPending drains the campaign's pre-materialized pending messages.
// Processed messages leave the pending set, so every iteration re-reads
// from the front; an empty page means the campaign is done.
func (s *CampaignSenderFlowImpl) runPending(ctx context.Context, campaign *models.Campaign, gateway *services.BreakerGateway) error {
	limiter := rate.NewLimiter(rate.Every(s.delayBetweenSMS), 1)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		active, err := s.campaignStillActive(ctx, campaign)
		if err != nil {
			return err
		}
		if !active {
			return nil
		}

		pending, err := s.messageRepo.ListPendingByCampaignPaged(ctx, campaign.ID, s.chunkSize)
		if err != nil {
			s.failCampaign(ctx, campaign, fmt.Sprintf("failed to page pending messages: %v", err))
			return err
		}
		if len(pending) == 0 {
			return s.completeCampaign(ctx, campaign)
		}

		result := s.processPendingChunk(ctx, campaign, gateway, limiter, pending)
		if err := s.applyChunkResult(ctx, campaign, result); err != nil {
			return err
		}

		select {
		case <-time.After(s.delayBetweenChunk):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// campaignStillActive re-reads the stored status. A campaign that left the
// active state stops processing cleanly; a read failure fails it.
func (s *CampaignSenderFlowImpl) campaignStillActive(ctx context.Context, campaign *models.Campaign) (bool, error) {
	current, err := s.campaignRepo.ByID(ctx, campaign.ID)
	if err != nil {
		s.failCampaign(ctx, campaign, fmt.Sprintf("failed to reload campaign: %v", err))
		return false, err
	}
	if current == nil || current.Status != models.CampaignStatusActive {
		if s.logger != nil && current != nil {
			s.logger.Printf("campaign %s: stopping, status is %s", campaign.UUID, current.Status)
		}
		return false, nil
	}
	return true, nil
}

// applyChunkResult commits one chunk's counters and reacts to gateway-level
// stop conditions. Rejected credentials and an open circuit both pause the
// campaign rather than burning through the remaining recipients.
func (s *CampaignSenderFlowImpl) applyChunkResult(ctx context.Context, campaign *models.Campaign, result *chunkResult) error {
	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.campaignRepo.IncrementSent(txCtx, campaign.ID, result.sent); err != nil {
			return err
		}
		return s.campaignRepo.IncrementFailed(txCtx, campaign.ID, result.failed)
	})
	if err != nil {
		s.failCampaign(ctx, campaign, fmt.Sprintf("failed to update campaign counters: %v", err))
		return err
	}

	middleware.CountCampaignMessages("sent", result.sent)
	middleware.CountCampaignMessages("failed", result.failed)

	if result.authFailed {
		s.pauseCampaign(ctx, campaign, "gateway rejected credentials; sending halted")
		return ErrGatewayAuthFailed
	}
	if result.circuitOpen {
		middleware.CountBreakerOpen()
		s.pauseCampaign(ctx, campaign, "gateway circuit opened after repeated failures")
		return ErrCircuitOpen
	}
	return nil
}

// processChunk sends one page of contacts in micro-batches. Per-message
// failures are isolated; only an open circuit or an auth rejection stops
// the chunk early.
func (s *CampaignSenderFlowImpl) processChunk(ctx context.Context, campaign *models.Campaign, gateway *services.BreakerGateway, limiter *rate.Limiter, contacts []*models.Contact) *chunkResult {
	result := &chunkResult{}

	for start := 0; start < len(contacts); start += s.microBatchSize {
		if result.circuitOpen || result.authFailed || ctx.Err() != nil {
			break
		}

		end := start + s.microBatchSize
		if end > len(contacts) {
			end = len(contacts)
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(s.maxConcurrent)
		for _, contact := range contacts[start:end] {
			contact := contact
			g.Go(func() error {
				s.sendOne(gCtx, campaign, gateway, limiter, contact, result)
				return nil
			})
		}
		_ = g.Wait()

		select {
		case <-time.After(s.rateLimitDelay):
		case <-ctx.Done():
		}
	}
	return result
}

// processPendingChunk delivers one page of pending messages with the same
// micro-batch shape as the contact path.
func (s *CampaignSenderFlowImpl) processPendingChunk(ctx context.Context, campaign *models.Campaign, gateway *services.BreakerGateway, limiter *rate.Limiter, pending []*models.Message) *chunkResult {
	result := &chunkResult{}

	for start := 0; start < len(pending); start += s.microBatchSize {
		if result.circuitOpen || result.authFailed || ctx.Err() != nil {
			break
		}

		end := start + s.microBatchSize
		if end > len(pending) {
			end = len(pending)
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(s.maxConcurrent)
		for _, msg := range pending[start:end] {
			msg := msg
			g.Go(func() error {
				s.deliverPending(gCtx, campaign, gateway, limiter, msg, result)
				return nil
			})
		}
		_ = g.Wait()

		select {
		case <-time.After(s.rateLimitDelay):
		case <-ctx.Done():
		}
	}
	return result
}

// sendOne delivers a single contact's message. The dedup lookup runs before
// every send; when the lookup itself errors the message is assumed already
// sent, losing a send beats duplicating one.
func (s *CampaignSenderFlowImpl) sendOne(ctx context.Context, campaign *models.Campaign, gateway *services.BreakerGateway, limiter *rate.Limiter, contact *models.Contact, result *chunkResult) {
	existing, err := s.messageRepo.ByCampaignAndPhone(ctx, campaign.ID, contact.Phone)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("campaign %s: dedup check failed for %s, skipping: %v", campaign.UUID, contact.Phone, err)
		}
		return
	}
	if existing != nil {
		return
	}

	if err := limiter.Wait(ctx); err != nil {
		return
	}

	text := renderMessageText(campaign.MessageText, contact)
	msg := &models.Message{
		CustomID:    uuid.New(),
		CampaignID:  campaign.ID,
		PhoneNumber: contact.Phone,
		Text:        text,
		Status:      models.MessageStatusPending,
	}

	receipt, err := gateway.Send(ctx, services.OutboundMessage{
		CampaignUUID: campaign.UUID.String(),
		To:           contact.Phone,
		Text:         text,
		CustomID:     msg.CustomID.String(),
	})

	switch {
	case err == nil:
		msg.Status = models.MessageStatusSent
		msg.SentAt = utils.ToPtr(receipt.AcceptedAt)
		msg.GatewayMessageID = utils.ToPtr(receipt.GatewayMessageID)
	case services.IsCircuitOpen(err):
		result.mu.Lock()
		result.circuitOpen = true
		result.mu.Unlock()
		return
	case services.IsAuthFailure(err):
		// No message row: the recipient was never attempted and stays
		// available for the resumed run.
		result.mu.Lock()
		result.authFailed = true
		result.mu.Unlock()
		return
	default:
		msg.Status = models.MessageStatusFailed
		msg.Reason = utils.ToPtr(err.Error())
	}

	if saveErr := s.messageRepo.Save(ctx, msg); saveErr != nil {
		if s.logger != nil {
			s.logger.Printf("campaign %s: failed to record message for %s: %v", campaign.UUID, contact.Phone, saveErr)
		}
		return
	}

	result.mu.Lock()
	if msg.Status == models.MessageStatusSent {
		result.sent++
	} else {
		result.failed++
	}
	result.mu.Unlock()
}

// deliverPending attempts one pre-materialized message. The row keeps its
// pending status when the attempt was shed by the breaker or by an auth
// rejection, so the resumed run picks it up again.
func (s *CampaignSenderFlowImpl) deliverPending(ctx context.Context, campaign *models.Campaign, gateway *services.BreakerGateway, limiter *rate.Limiter, msg *models.Message, result *chunkResult) {
	if err := limiter.Wait(ctx); err != nil {
		return
	}

	receipt, err := gateway.Send(ctx, services.OutboundMessage{
		CampaignUUID: campaign.UUID.String(),
		To:           msg.PhoneNumber,
		Text:         msg.Text,
		CustomID:     msg.CustomID.String(),
	})

	switch {
	case err == nil:
		msg.Status = models.MessageStatusSent
		msg.SentAt = utils.ToPtr(receipt.AcceptedAt)
		msg.GatewayMessageID = utils.ToPtr(receipt.GatewayMessageID)
	case services.IsCircuitOpen(err):
		result.mu.Lock()
		result.circuitOpen = true
		result.mu.Unlock()
		return
	case services.IsAuthFailure(err):
		result.mu.Lock()
		result.authFailed = true
		result.mu.Unlock()
		return
	default:
		msg.Status = models.MessageStatusFailed
		msg.Reason = utils.ToPtr(err.Error())
	}

	if updateErr := s.messageRepo.Update(ctx, msg); updateErr != nil {
		if s.logger != nil {
			s.logger.Printf("campaign %s: failed to record outcome for %s: %v", campaign.UUID, msg.PhoneNumber, updateErr)
		}
		return
	}

	result.mu.Lock()
	if msg.Status == models.MessageStatusSent {
		result.sent++
	} else {
		result.failed++
	}
	result.mu.Unlock()
}

// renderMessageText substitutes {{token}} placeholders with the contact's
// fields: {{name}} and {{contact_name}} with the name, {{phone}} with the
// E.164 number, and any tag key with its value.
func renderMessageText(template string, contact *models.Contact) string {
	out := template
	if contact.Name != nil && *contact.Name != "" {
		out = strings.ReplaceAll(out, "{{name}}", *contact.Name)
		out = strings.ReplaceAll(out, "{{contact_name}}", *contact.Name)
	}
	out = strings.ReplaceAll(out, "{{phone}}", contact.Phone)
	for key, value := range contact.Tags {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}

// completeCampaign recounts the real message total and marks the campaign
// completed. The recount is the source of truth; incremental counters can
// drift when chunks are retried.
func (s *CampaignSenderFlowImpl) completeCampaign(ctx context.Context, campaign *models.Campaign) error {
	total, err := s.messageRepo.CountByCampaign(ctx, campaign.ID)
	if err != nil {
		s.failCampaign(ctx, campaign, fmt.Sprintf("failed to recount messages: %v", err))
		return err
	}
	sent, err := s.messageRepo.CountByCampaignAndStatuses(ctx, campaign.ID,
		[]models.MessageStatus{models.MessageStatusSent, models.MessageStatusDelivered})
	if err != nil {
		s.failCampaign(ctx, campaign, fmt.Sprintf("failed to recount sent messages: %v", err))
		return err
	}
	failed, err := s.messageRepo.CountByCampaignAndStatuses(ctx, campaign.ID,
		[]models.MessageStatus{models.MessageStatusFailed})
	if err != nil {
		s.failCampaign(ctx, campaign, fmt.Sprintf("failed to recount failed messages: %v", err))
		return err
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.campaignRepo.SetTotals(txCtx, campaign.ID, total, sent, failed); err != nil {
			return err
		}
		moved, err := s.campaignRepo.UpdateStatusFrom(txCtx, campaign.ID,
			models.CampaignStatusActive, models.CampaignStatusCompleted,
			map[string]any{"completed_at": utils.UTCNow()})
		if err != nil {
			return err
		}
		if !moved && s.logger != nil {
			s.logger.Printf("campaign %s: already left active state, completion skipped", campaign.UUID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete campaign %s: %w", campaign.UUID, err)
	}

	if s.logger != nil {
		s.logger.Printf("campaign %s: completed with %d messages", campaign.UUID, total)
	}
	return nil
}

func (s *CampaignSenderFlowImpl) pauseCampaign(ctx context.Context, campaign *models.Campaign, reason string) {
	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		moved, err := s.campaignRepo.UpdateStatusFrom(txCtx, campaign.ID,
			models.CampaignStatusActive, models.CampaignStatusPaused, nil)
		if err != nil || !moved {
			return err
		}
		settings := campaign.Settings
		settings.PausedReason = utils.ToPtr(reason)
		return s.campaignRepo.UpdateSettings(txCtx, campaign.ID, settings)
	})
	if err != nil && s.logger != nil {
		s.logger.Printf("campaign %s: failed to pause: %v", campaign.UUID, err)
	}
	if s.logger != nil {
		s.logger.Printf("campaign %s: paused: %s", campaign.UUID, reason)
	}
}

func (s *CampaignSenderFlowImpl) failCampaign(ctx context.Context, campaign *models.Campaign, reason string) {
	_, err := s.campaignRepo.UpdateStatusFrom(ctx, campaign.ID,
		models.CampaignStatusActive, models.CampaignStatusFailed,
		map[string]any{"completed_at": utils.UTCNow()})
	if err != nil && s.logger != nil {
		s.logger.Printf("campaign %s: failed to record failure: %v", campaign.UUID, err)
	}
	if s.logger != nil {
		s.logger.Printf("campaign %s: failed: %s", campaign.UUID, reason)
	}
}
