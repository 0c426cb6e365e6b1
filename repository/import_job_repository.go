package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/textwave/textwave/models"
	"gorm.io/gorm"
)

// ImportJobRepositoryImpl implements ImportJobRepository
type ImportJobRepositoryImpl struct {
	*BaseRepository[models.ImportJob, models.ImportJobFilter]
}

func NewImportJobRepository(db *gorm.DB) ImportJobRepository {
	return &ImportJobRepositoryImpl{BaseRepository: NewBaseRepository[models.ImportJob, models.ImportJobFilter](db)}
}

func (r *ImportJobRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	db := r.getDB(ctx)
	var job models.ImportJob
	if err := db.Where("uuid = ?", id).Last(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// UpdateProgress writes the running counters, the capped error sample and
// the parse metadata in a single UPDATE.
func (r *ImportJobRepositoryImpl) UpdateProgress(ctx context.Context, jobID uint, rowsTotal, rowsProcessed, errorCount int64, errorSample models.ImportErrorList, metadata models.ImportJobMetadata) error {
	db := r.getDB(ctx)
	err := db.Model(&models.ImportJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"rows_total":     rowsTotal,
			"rows_processed": rowsProcessed,
			"error_count":    errorCount,
			"errors":         errorSample,
			"metadata":       metadata,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update import job %d progress: %w", jobID, err)
	}
	return nil
}

// UpdateStatusFrom moves a job from one status to another with a guarded
// UPDATE so concurrent transitions cannot race. extra carries additional
// columns written with the transition (completed_at).
func (r *ImportJobRepositoryImpl) UpdateStatusFrom(ctx context.Context, jobID uint, from, to models.ImportJobStatus, extra map[string]any) (bool, error) {
	db := r.getDB(ctx)

	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := db.Model(&models.ImportJob{}).
		Where("id = ? AND status = ?", jobID, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition import job %d from %s to %s: %w", jobID, from, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *ImportJobRepositoryImpl) MarkCompleted(ctx context.Context, jobID uint, status models.ImportJobStatus, completedAt time.Time) error {
	db := r.getDB(ctx)
	err := db.Model(&models.ImportJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":       status,
			"completed_at": completedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark import job %d %s: %w", jobID, status, err)
	}
	return nil
}

func (r *ImportJobRepositoryImpl) applyFilter(db *gorm.DB, f models.ImportJobFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.OwnerID != nil {
		db = db.Where("owner_id = ?", *f.OwnerID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.SHA256 != nil {
		db = db.Where("sha256 = ?", *f.SHA256)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *ImportJobRepositoryImpl) ByFilter(ctx context.Context, filter models.ImportJobFilter, orderBy string, limit, offset int) ([]*models.ImportJob, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ImportJob{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.ImportJob
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ImportJobRepositoryImpl) Count(ctx context.Context, filter models.ImportJobFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ImportJob{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ImportJobRepositoryImpl) Exists(ctx context.Context, filter models.ImportJobFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
