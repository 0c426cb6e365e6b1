package repository

import (
	"context"
	"fmt"

	"github.com/textwave/textwave/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactRepositoryImpl implements ContactRepository
type ContactRepositoryImpl struct {
	*BaseRepository[models.Contact, models.ContactFilter]
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{BaseRepository: NewBaseRepository[models.Contact, models.ContactFilter](db)}
}

// BulkInsertIgnoreDups inserts a chunk of contacts with
// ON CONFLICT (import_id, phone) DO NOTHING so duplicate phones within the
// same import are skipped without failing the chunk.
func (r *ContactRepositoryImpl) BulkInsertIgnoreDups(ctx context.Context, contacts []*models.Contact) (int64, error) {
	if len(contacts) == 0 {
		return 0, nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "import_id"}, {Name: "phone"}},
		DoNothing: true,
	}).Create(&contacts)
	if res.Error != nil {
		err = fmt.Errorf("failed to bulk insert contacts: %w", res.Error)
		return 0, err
	}

	return res.RowsAffected, nil
}

// InsertIfAbsent checks for an existing (import_id, phone) row and inserts
// when absent. Used as the per-row fallback after a failed bulk insert.
func (r *ContactRepositoryImpl) InsertIfAbsent(ctx context.Context, contact *models.Contact) (bool, error) {
	db := r.getDB(ctx)

	var count int64
	err := db.Model(&models.Contact{}).
		Where("import_id = ? AND phone = ?", contact.ImportID, contact.Phone).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check contact existence: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	if err := r.Save(ctx, contact); err != nil {
		return false, err
	}
	return true, nil
}

func (r *ContactRepositoryImpl) ListByImportPaged(ctx context.Context, importID uint, limit, offset int) ([]*models.Contact, error) {
	db := r.getDB(ctx)
	var rows []*models.Contact
	err := db.Model(&models.Contact{}).
		Where("import_id = ?", importID).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ContactRepositoryImpl) CountByImport(ctx context.Context, importID uint) (int64, error) {
	return r.Count(ctx, models.ContactFilter{ImportID: &importID})
}

func (r *ContactRepositoryImpl) applyFilter(db *gorm.DB, f models.ContactFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ImportID != nil {
		db = db.Where("import_id = ?", *f.ImportID)
	}
	if f.Phone != nil {
		db = db.Where("phone = ?", *f.Phone)
	}
	return db
}

func (r *ContactRepositoryImpl) ByFilter(ctx context.Context, filter models.ContactFilter, orderBy string, limit, offset int) ([]*models.Contact, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Contact{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Contact
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ContactRepositoryImpl) Count(ctx context.Context, filter models.ContactFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Contact{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ContactRepositoryImpl) Exists(ctx context.Context, filter models.ContactFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
