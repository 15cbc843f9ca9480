package checkout

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/serialforge/groupbuy-backend/pkg/db/models"
	"github.com/serialforge/groupbuy-backend/pkg/enums"
)

// SessionRepository persists checkout sessions.
type SessionRepository interface {
	WithTx(tx *gorm.DB) SessionRepository
	FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	Create(ctx context.Context, record *models.CheckoutSession) (*models.CheckoutSession, error)
	ExpireActiveForCart(ctx context.Context, cartID uuid.UUID) (int64, error)
	SetStatus(ctx context.Context, id uuid.UUID, status enums.SessionStatus) error
	Complete(ctx context.Context, id uuid.UUID, completedAt time.Time) (int64, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// Repository is the gorm-backed SessionRepository.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a session repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) SessionRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads one session. A missing row returns (nil, nil).
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	var record models.CheckoutSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Create inserts a session row.
func (r *Repository) Create(ctx context.Context, record *models.CheckoutSession) (*models.CheckoutSession, error) {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// ExpireActiveForCart marks every active session of the cart expired. The
// one-active-per-cart rule is enforced here before each insert, with the
// partial unique index as a backstop.
func (r *Repository) ExpireActiveForCart(ctx context.Context, cartID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("cart_id = ? AND status = ?", cartID, enums.SessionStatusActive).
		Update("status", enums.SessionStatusExpired)
	return result.RowsAffected, result.Error
}

// SetStatus transitions a session's lifecycle state.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status enums.SessionStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// Complete marks a session completed with its completion time. The active
// check rides in the WHERE clause so a session invalidated after the
// caller's read cannot be overwritten; zero rows affected means the session
// left the active state.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, completedAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", id, enums.SessionStatusActive).
		Updates(map[string]any{
			"status":       enums.SessionStatusCompleted,
			"completed_at": completedAt,
		})
	return result.RowsAffected, result.Error
}

// ExpireOverdue sweeps every active session past its expiry. Used by the
// cron worker; the lazy check in ValidateSession covers sessions the sweep
// has not reached yet.
func (r *Repository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("status = ? AND expires_at <= ?", enums.SessionStatusActive, now).
		Update("status", enums.SessionStatusExpired)
	return result.RowsAffected, result.Error
}
