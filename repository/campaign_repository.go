package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/textwave/textwave/models"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements the CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db)}
}

func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	db := r.getDB(ctx)
	var campaign models.Campaign
	if err := db.Where("uuid = ?", id).Last(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &campaign, nil
}

// UpdateStatusFrom moves a campaign from one status to another with a
// guarded UPDATE so concurrent transitions cannot race. extra carries
// additional columns written with the transition (started_at, completed_at).
func (r *CampaignRepositoryImpl) UpdateStatusFrom(ctx context.Context, campaignID uint, from, to models.CampaignStatus, extra map[string]any) (bool, error) {
	db := r.getDB(ctx)

	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := db.Model(&models.Campaign{}).
		Where("id = ? AND status = ?", campaignID, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition campaign %d from %s to %s: %w", campaignID, from, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *CampaignRepositoryImpl) IncrementSent(ctx context.Context, campaignID uint, delta int64) error {
	return r.incrementCounter(ctx, campaignID, "sent_count", delta)
}

func (r *CampaignRepositoryImpl) IncrementFailed(ctx context.Context, campaignID uint, delta int64) error {
	return r.incrementCounter(ctx, campaignID, "failed_count", delta)
}

func (r *CampaignRepositoryImpl) incrementCounter(ctx context.Context, campaignID uint, column string, delta int64) error {
	if delta == 0 {
		return nil
	}
	db := r.getDB(ctx)
	err := db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
	if err != nil {
		return fmt.Errorf("failed to increment %s for campaign %d: %w", column, campaignID, err)
	}
	return nil
}

func (r *CampaignRepositoryImpl) SetTotals(ctx context.Context, campaignID uint, totalMessages, sentCount, failedCount int64) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		UpdateColumns(map[string]any{
			"total_messages": totalMessages,
			"sent_count":     sentCount,
			"failed_count":   failedCount,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to set totals for campaign %d: %w", campaignID, err)
	}
	return nil
}

func (r *CampaignRepositoryImpl) UpdateSettings(ctx context.Context, campaignID uint, settings models.CampaignSettings) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		UpdateColumn("settings", settings).Error
	if err != nil {
		return fmt.Errorf("failed to update settings for campaign %d: %w", campaignID, err)
	}
	return nil
}

func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, f models.CampaignFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.UserID != nil {
		db = db.Where("user_id = ?", *f.UserID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Campaign
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *CampaignRepositoryImpl) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
