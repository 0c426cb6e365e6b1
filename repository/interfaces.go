// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/textwave/textwave/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// ImportJobRepository defines operations for contact import jobs
type ImportJobRepository interface {
	Repository[models.ImportJob, models.ImportJobFilter]
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.ImportJob, error)
	UpdateProgress(ctx context.Context, jobID uint, rowsTotal, rowsProcessed, errorCount int64, errorSample models.ImportErrorList, metadata models.ImportJobMetadata) error
	MarkCompleted(ctx context.Context, jobID uint, status models.ImportJobStatus, completedAt time.Time) error
	// UpdateStatusFrom performs a compare-and-set status transition and
	// reports whether a row was actually moved from the expected status.
	UpdateStatusFrom(ctx context.Context, jobID uint, from, to models.ImportJobStatus, extra map[string]any) (bool, error)
}

// ContactRepository defines operations for imported contacts
type ContactRepository interface {
	Repository[models.Contact, models.ContactFilter]
	// BulkInsertIgnoreDups inserts contacts in one statement, silently
	// skipping rows that collide on (import_id, phone). Returns the number
	// of rows actually inserted.
	BulkInsertIgnoreDups(ctx context.Context, contacts []*models.Contact) (int64, error)
	// InsertIfAbsent is the row-at-a-time fallback used when a bulk insert
	// fails. It reports whether the contact was inserted.
	InsertIfAbsent(ctx context.Context, contact *models.Contact) (bool, error)
	ListByImportPaged(ctx context.Context, importID uint, limit, offset int) ([]*models.Contact, error)
	CountByImport(ctx context.Context, importID uint) (int64, error)
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Campaign, error)
	// UpdateStatusFrom performs a compare-and-set lifecycle transition and
	// reports whether a row was actually moved from the expected status.
	UpdateStatusFrom(ctx context.Context, campaignID uint, from, to models.CampaignStatus, extra map[string]any) (bool, error)
	IncrementSent(ctx context.Context, campaignID uint, delta int64) error
	IncrementFailed(ctx context.Context, campaignID uint, delta int64) error
	// SetTotals overwrites the counters with an exact recount.
	SetTotals(ctx context.Context, campaignID uint, totalMessages, sentCount, failedCount int64) error
	UpdateSettings(ctx context.Context, campaignID uint, settings models.CampaignSettings) error
}

// MessageRepository defines operations for campaign messages
type MessageRepository interface {
	Repository[models.Message, models.MessageFilter]
	ByCampaignAndPhone(ctx context.Context, campaignID uint, phone string) (*models.Message, error)
	CountByCampaign(ctx context.Context, campaignID uint) (int64, error)
	CountByCampaignAndStatuses(ctx context.Context, campaignID uint, statuses []models.MessageStatus) (int64, error)
	ListByCampaignPaged(ctx context.Context, campaignID uint, limit, offset int) ([]*models.Message, error)
	// ListPendingByCampaignPaged returns the oldest pending messages of a
	// campaign. Processed messages leave the pending set, so callers page
	// by re-reading from the start rather than by offset.
	ListPendingByCampaignPaged(ctx context.Context, campaignID uint, limit int) ([]*models.Message, error)
}
