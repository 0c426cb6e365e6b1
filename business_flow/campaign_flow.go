// Package businessflow contains the core business logic and use cases for import and campaign workflows
package businessflow

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/textwave/textwave/app/middleware"
	"github.com/textwave/textwave/models"
	"github.com/textwave/textwave/repository"
	"github.com/textwave/textwave/utils"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

// CampaignFlow handles the campaign lifecycle: creation from an import,
// start/pause/cancel transitions and background processing.
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, userID uint, name, messageText string, importJobUUID uuid.UUID, virtual, skipInvalidPhones bool) (*models.Campaign, error)
	StartCampaign(ctx context.Context, campaignUUID uuid.UUID, userID uint) error
	PauseCampaign(ctx context.Context, campaignUUID uuid.UUID, userID uint) error
	CancelCampaign(ctx context.Context, campaignUUID uuid.UUID, userID uint) error
	GetCampaign(ctx context.Context, campaignUUID uuid.UUID, userID uint) (*models.Campaign, error)
	ListCampaigns(ctx context.Context, userID uint, limit, offset int) ([]*models.Campaign, error)
	ListCampaignMessages(ctx context.Context, campaignUUID uuid.UUID, userID uint, limit, offset int) ([]*models.Message, error)
	// Close stops accepting new background runs and waits for in-flight
	// campaign processing to wind down.
	Close()
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	db           *gorm.DB
	campaignRepo repository.CampaignRepository
	jobRepo      repository.ImportJobRepository
	contactRepo  repository.ContactRepository
	messageRepo  repository.MessageRepository
	sender       CampaignSenderFlow
	logger       *log.Logger

	// Background processing guards: a per-process in-flight set plus a
	// semaphore bounding concurrent campaigns.
	mu         sync.Mutex
	processing map[uint]struct{}
	sem        *semaphore.Weighted
	wg         sync.WaitGroup
	runCtx     context.Context
	cancel     context.CancelFunc
}

// NewCampaignFlow creates a new campaign flow instance.
func NewCampaignFlow(
	db *gorm.DB,
	campaignRepo repository.CampaignRepository,
	jobRepo repository.ImportJobRepository,
	contactRepo repository.ContactRepository,
	messageRepo repository.MessageRepository,
	sender CampaignSenderFlow,
	logger *log.Logger,
) *CampaignFlowImpl {
	runCtx, cancel := context.WithCancel(context.Background())
	return &CampaignFlowImpl{
		db:           db,
		campaignRepo: campaignRepo,
		jobRepo:      jobRepo,
		contactRepo:  contactRepo,
		messageRepo:  messageRepo,
		sender:       sender,
		logger:       logger,
		processing:   make(map[uint]struct{}),
		sem:          semaphore.NewWeighted(utils.MaxConcurrentCampaigns),
		runCtx:       runCtx,
		cancel:       cancel,
	}
}

// CreateCampaign builds a draft campaign over a finished import. Virtual
// campaigns generate messages on demand at send time; non-virtual campaigns
// materialize a pending Message row per contact up front, rendered against
// the template, and the sender drains those rows. The contact count at
// creation time seeds the message total; the sender recounts exactly at
// completion.
func (f *CampaignFlowImpl) CreateCampaign(ctx context.Context, userID uint, name, messageText string, importJobUUID uuid.UUID, virtual, skipInvalidPhones bool) (*models.Campaign, error) {
	if name == "" {
		return nil, ErrCampaignNameRequired
	}
	if messageText == "" {
		return nil, ErrCampaignMessageRequired
	}

	job, err := f.jobRepo.ByUUID(ctx, importJobUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load import job: %w", err)
	}
	if job == nil {
		return nil, ErrImportJobNotFound
	}
	if job.OwnerID != userID {
		return nil, ErrImportAccessDenied
	}
	if !job.Status.IsTerminal() {
		return nil, ErrImportStillProcessing
	}

	contactCount, err := f.contactRepo.CountByImport(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count import contacts: %w", err)
	}
	if contactCount == 0 {
		return nil, ErrImportHasNoContacts
	}

	campaign := &models.Campaign{
		UUID:          uuid.New(),
		UserID:        userID,
		Name:          name,
		Status:        models.CampaignStatusDraft,
		MessageText:   messageText,
		TotalMessages: contactCount,
		Settings: models.CampaignSettings{
			VirtualMessaging:  virtual,
			ImportJobID:       &job.ID,
			SkipInvalidPhones: skipInvalidPhones,
		},
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.campaignRepo.Save(txCtx, campaign); err != nil {
			return err
		}
		if virtual {
			return nil
		}
		return f.materializeMessages(txCtx, campaign, job.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	return campaign, nil
}

// materializeMessages creates one pending message per contact for a
// non-virtual campaign, rendered against the campaign template at creation
// time. Pages contacts to keep memory bounded on large imports.
func (f *CampaignFlowImpl) materializeMessages(ctx context.Context, campaign *models.Campaign, importID uint) error {
	offset := 0
	for {
		contacts, err := f.contactRepo.ListByImportPaged(ctx, importID, utils.SenderChunkSize, offset)
		if err != nil {
			return fmt.Errorf("failed to page contacts for materialization: %w", err)
		}
		if len(contacts) == 0 {
			return nil
		}

		batch := make([]*models.Message, 0, len(contacts))
		for _, contact := range contacts {
			batch = append(batch, &models.Message{
				CustomID:    uuid.New(),
				CampaignID:  campaign.ID,
				PhoneNumber: contact.Phone,
				Text:        renderMessageText(campaign.MessageText, contact),
				Status:      models.MessageStatusPending,
			})
		}
		if err := f.messageRepo.SaveBatch(ctx, batch); err != nil {
			return fmt.Errorf("failed to materialize messages: %w", err)
		}
		offset += len(contacts)
	}
}

// StartCampaign activates a draft or paused campaign and launches its
// background processing. The guarded transition plus the in-flight set make
// a double start a no-op error instead of a duplicate run.
func (f *CampaignFlowImpl) StartCampaign(ctx context.Context, campaignUUID uuid.UUID, userID uint) error {
	campaign, err := f.getOwned(ctx, campaignUUID, userID)
	if err != nil {
		return err
	}
	if !campaign.Status.CanTransitionTo(models.CampaignStatusActive) {
		return ErrCampaignNotStartable
	}

	f.mu.Lock()
	if _, busy := f.processing[campaign.ID]; busy {
		f.mu.Unlock()
		return ErrCampaignAlreadyProcessing
	}
	f.processing[campaign.ID] = struct{}{}
	f.mu.Unlock()

	extra := map[string]any{}
	if campaign.StartedAt == nil {
		extra["started_at"] = utils.UTCNow()
	}
	moved, err := f.campaignRepo.UpdateStatusFrom(ctx, campaign.ID, campaign.Status, models.CampaignStatusActive, extra)
	if err != nil || !moved {
		f.release(campaign.ID)
		if err != nil {
			return fmt.Errorf("failed to activate campaign: %w", err)
		}
		return ErrCampaignNotStartable
	}
	campaign.Status = models.CampaignStatusActive

	if campaign.Settings.PausedReason != nil {
		campaign.Settings.PausedReason = nil
		if err := f.campaignRepo.UpdateSettings(ctx, campaign.ID, campaign.Settings); err != nil && f.logger != nil {
			f.logger.Printf("campaign %s: failed to clear pause reason: %v", campaign.UUID, err)
		}
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.release(campaign.ID)

		if err := f.sem.Acquire(f.runCtx, 1); err != nil {
			return
		}
		defer f.sem.Release(1)

		middleware.TrackActiveCampaign(1)
		defer middleware.TrackActiveCampaign(-1)

		if err := f.sender.Run(f.runCtx, campaign); err != nil && f.logger != nil {
			f.logger.Printf("campaign %s: processing ended with error: %v", campaign.UUID, err)
		}
	}()
	return nil
}

// PauseCampaign suspends an active campaign. The sender notices the status
// change at its next chunk boundary.
func (f *CampaignFlowImpl) PauseCampaign(ctx context.Context, campaignUUID uuid.UUID, userID uint) error {
	campaign, err := f.getOwned(ctx, campaignUUID, userID)
	if err != nil {
		return err
	}
	if !campaign.Status.CanTransitionTo(models.CampaignStatusPaused) {
		return ErrCampaignNotPausable
	}

	moved, err := f.campaignRepo.UpdateStatusFrom(ctx, campaign.ID, models.CampaignStatusActive, models.CampaignStatusPaused, nil)
	if err != nil {
		return fmt.Errorf("failed to pause campaign: %w", err)
	}
	if !moved {
		return ErrCampaignNotPausable
	}
	return nil
}

// CancelCampaign cancels any non-terminal campaign and stamps completed_at.
func (f *CampaignFlowImpl) CancelCampaign(ctx context.Context, campaignUUID uuid.UUID, userID uint) error {
	campaign, err := f.getOwned(ctx, campaignUUID, userID)
	if err != nil {
		return err
	}
	if !campaign.Status.CanTransitionTo(models.CampaignStatusCancelled) {
		return ErrCampaignAlreadyTerminal
	}

	moved, err := f.campaignRepo.UpdateStatusFrom(ctx, campaign.ID, campaign.Status, models.CampaignStatusCancelled,
		map[string]any{"completed_at": utils.UTCNow()})
	if err != nil {
		return fmt.Errorf("failed to cancel campaign: %w", err)
	}
	if !moved {
		// Lost a race with another transition; the caller can re-read.
		return ErrCampaignAlreadyTerminal
	}
	return nil
}

func (f *CampaignFlowImpl) GetCampaign(ctx context.Context, campaignUUID uuid.UUID, userID uint) (*models.Campaign, error) {
	return f.getOwned(ctx, campaignUUID, userID)
}

func (f *CampaignFlowImpl) ListCampaigns(ctx context.Context, userID uint, limit, offset int) ([]*models.Campaign, error) {
	filter := models.CampaignFilter{UserID: &userID}
	return f.campaignRepo.ByFilter(ctx, filter, "id DESC", limit, offset)
}

// ListCampaignMessages returns the campaign's outbound messages in send
// order so callers can inspect per-recipient outcomes.
func (f *CampaignFlowImpl) ListCampaignMessages(ctx context.Context, campaignUUID uuid.UUID, userID uint, limit, offset int) ([]*models.Message, error) {
	campaign, err := f.getOwned(ctx, campaignUUID, userID)
	if err != nil {
		return nil, err
	}
	return f.messageRepo.ListByCampaignPaged(ctx, campaign.ID, limit, offset)
}

// Close cancels background runs and waits for them to exit.
func (f *CampaignFlowImpl) Close() {
	f.cancel()
	f.wg.Wait()
}

func (f *CampaignFlowImpl) getOwned(ctx context.Context, campaignUUID uuid.UUID, userID uint) (*models.Campaign, error) {
	campaign, err := f.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	if campaign.UserID != userID {
		return nil, ErrCampaignAccessDenied
	}
	return campaign, nil
}

func (f *CampaignFlowImpl) release(campaignID uint) {
	f.mu.Lock()
	delete(f.processing, campaignID)
	f.mu.Unlock()
}
