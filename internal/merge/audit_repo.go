package merge

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/serialforge/groupbuy-backend/pkg/db/models"
)

// AuditStore persists merge audit rows.
type AuditStore interface {
	WithTx(tx *gorm.DB) AuditStore
	Create(ctx context.Context, record *models.CartMergeAudit) error
	ListByUserCart(ctx context.Context, userCartID uuid.UUID) ([]models.CartMergeAudit, error)
}

// AuditRepository is the gorm-backed AuditStore.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository constructs an audit repository bound to the provided DB.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *AuditRepository) WithTx(tx *gorm.DB) AuditStore {
	if tx == nil {
		return r
	}
	return &AuditRepository{db: tx}
}

// Create inserts an audit row.
func (r *AuditRepository) Create(ctx context.Context, record *models.CartMergeAudit) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// ListByUserCart returns the merge history of a user cart, newest first.
func (r *AuditRepository) ListByUserCart(ctx context.Context, userCartID uuid.UUID) ([]models.CartMergeAudit, error) {
	var records []models.CartMergeAudit
	err := r.db.WithContext(ctx).
		Where("user_cart_id = ?", userCartID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
