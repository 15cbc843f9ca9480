package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/serialforge/groupbuy-backend/pkg/db/models"
)

// Repository reads catalog rows. The catalog is written by the ingestion
// pipeline; this subsystem never mutates it.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads one catalog item. A missing row returns (nil, nil); a
// deleted listing is an expected condition, not an error.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByIDs bulk-loads catalog items for cart hydration. IDs that no longer
// exist are simply absent from the result map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.CatalogItem, error) {
	result := make(map[uuid.UUID]*models.CatalogItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []models.CatalogItem
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		result[rows[i].ID] = &rows[i]
	}
	return result, nil
}
