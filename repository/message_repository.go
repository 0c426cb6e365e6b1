package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/textwave/textwave/models"
	"gorm.io/gorm"
)

// MessageRepositoryImpl implements MessageRepository
type MessageRepositoryImpl struct {
	*BaseRepository[models.Message, models.MessageFilter]
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &MessageRepositoryImpl{BaseRepository: NewBaseRepository[models.Message, models.MessageFilter](db)}
}

// ByCampaignAndPhone is the dedup lookup consulted before every send.
func (r *MessageRepositoryImpl) ByCampaignAndPhone(ctx context.Context, campaignID uint, phone string) (*models.Message, error) {
	db := r.getDB(ctx)
	var msg models.Message
	err := db.Where("campaign_id = ? AND phone_number = ?", campaignID, phone).Last(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepositoryImpl) CountByCampaign(ctx context.Context, campaignID uint) (int64, error) {
	return r.Count(ctx, models.MessageFilter{CampaignID: &campaignID})
}

// CountByCampaignAndStatuses counts the campaign's messages in any of the
// given statuses with a single ANY(array) query.
func (r *MessageRepositoryImpl) CountByCampaignAndStatuses(ctx context.Context, campaignID uint, statuses []models.MessageStatus) (int64, error) {
	vals := make([]string, len(statuses))
	for i, s := range statuses {
		vals[i] = s.String()
	}

	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.Message{}).
		Where("campaign_id = ? AND status = ANY(?)", campaignID, pq.Array(vals)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count messages by status for campaign %d: %w", campaignID, err)
	}
	return count, nil
}

func (r *MessageRepositoryImpl) ListByCampaignPaged(ctx context.Context, campaignID uint, limit, offset int) ([]*models.Message, error) {
	filter := models.MessageFilter{CampaignID: &campaignID}
	return r.ByFilter(ctx, filter, "id ASC", limit, offset)
}

func (r *MessageRepositoryImpl) ListPendingByCampaignPaged(ctx context.Context, campaignID uint, limit int) ([]*models.Message, error) {
	status := models.MessageStatusPending
	filter := models.MessageFilter{CampaignID: &campaignID, Status: &status}
	return r.ByFilter(ctx, filter, "id ASC", limit, 0)
}

func (r *MessageRepositoryImpl) applyFilter(db *gorm.DB, f models.MessageFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.CustomID != nil {
		db = db.Where("custom_id = ?", *f.CustomID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.PhoneNumber != nil {
		db = db.Where("phone_number = ?", *f.PhoneNumber)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	return db
}

func (r *MessageRepositoryImpl) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Message{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *MessageRepositoryImpl) Count(ctx context.Context, filter models.MessageFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Message{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *MessageRepositoryImpl) Exists(ctx context.Context, filter models.MessageFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
