package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/serialforge/groupbuy-backend/internal/cart"
	"github.com/serialforge/groupbuy-backend/pkg/db/models"
	"github.com/serialforge/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/serialforge/groupbuy-backend/pkg/errors"
	"github.com/serialforge/groupbuy-backend/pkg/metrics"
)

// SessionValidation is the outcome of checking a session before order
// placement. Only a missing session is an error; every other state comes
// back as data so the caller can branch without unwrapping.
type SessionValidation struct {
	SessionID    uuid.UUID           `json:"session_id"`
	Valid        bool                `json:"valid"`
	Status       enums.SessionStatus `json:"status"`
	NeedsRefresh bool                `json:"needs_refresh"`
}

type cartLoader interface {
	GetWithItems(ctx context.Context, id uuid.UUID) (*cart.CartView, error)
}

// Service manages checkout sessions over a cart.
type Service interface {
	CreateSession(ctx context.Context, cartID, userID uuid.UUID) (*models.CheckoutSession, error)
	ValidateSession(ctx context.Context, sessionID, userID uuid.UUID) (*SessionValidation, error)
	CompleteSession(ctx context.Context, sessionID, userID uuid.UUID) (*models.CheckoutSession, error)
}

type service struct {
	sessions SessionRepository
	carts    cartLoader
	tx       cart.TxRunner
	metrics  *metrics.CartMetrics
	ttl      time.Duration
	now      func() time.Time
}

// NewService builds a checkout service. Metrics may be nil.
func NewService(sessions SessionRepository, carts cartLoader, tx cart.TxRunner, m *metrics.CartMetrics, ttl time.Duration) (Service, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &service{
		sessions: sessions,
		carts:    carts,
		tx:       tx,
		metrics:  m,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// CreateSession pins the cart's current version and content hash for the
// checkout flow. The cart must be non-empty and fully valid; any prior
// active session for the cart is expired first so at most one stays live.
func (s *service) CreateSession(ctx context.Context, cartID, userID uuid.UUID) (*models.CheckoutSession, error) {
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	view, err := s.carts.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, wrapStore(err, "load cart")
	}
	if view.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot start checkout with an empty cart")
	}

	report := cart.BuildValidationReport(view)
	if !report.IsCheckoutReady() {
		return nil, pkgerrors.New(pkgerrors.CodeItemUnavailable,
			"cart contains items that are no longer available").
			WithDetails(report.Invalid)
	}

	now := s.now()
	session := &models.CheckoutSession{
		CartID:             cartID,
		UserID:             userID,
		CartVersionAtStart: view.Cart.Version,
		CartHash:           view.Hash(),
		Status:             enums.SessionStatusActive,
		ExpiresAt:          now.Add(s.ttl),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessions := s.sessions.WithTx(tx)
		if _, err := sessions.ExpireActiveForCart(ctx, cartID); err != nil {
			return err
		}
		_, err := sessions.Create(ctx, session)
		return err
	})
	if err != nil {
		return nil, wrapStore(err, "create checkout session")
	}
	return session, nil
}

// ValidateSession checks that the session is still usable: active, inside
// its expiry window, and pinned to a cart that has not drifted. A drifted or
// overdue session is transitioned in place so the state is never rechecked.
// Only the session's owner may look it up.
func (s *service) ValidateSession(ctx context.Context, sessionID, userID uuid.UUID) (*SessionValidation, error) {
	session, err := s.loadOwnedSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	if session.Status != enums.SessionStatusActive {
		return &SessionValidation{SessionID: session.ID, Status: session.Status}, nil
	}

	now := s.now()
	if !session.ExpiresAt.After(now) {
		if err := s.sessions.SetStatus(ctx, session.ID, enums.SessionStatusExpired); err != nil {
			return nil, wrapStore(err, "expire checkout session")
		}
		return &SessionValidation{
			SessionID:    session.ID,
			Status:       enums.SessionStatusExpired,
			NeedsRefresh: true,
		}, nil
	}

	view, err := s.carts.GetWithItems(ctx, session.CartID)
	if err != nil {
		return nil, wrapStore(err, "load cart for drift check")
	}
	if view.Cart.Version != session.CartVersionAtStart || view.Hash() != session.CartHash {
		if err := s.sessions.SetStatus(ctx, session.ID, enums.SessionStatusInvalidated); err != nil {
			return nil, wrapStore(err, "invalidate checkout session")
		}
		s.metrics.IncSessionDrift()
		return &SessionValidation{
			SessionID:    session.ID,
			Status:       enums.SessionStatusInvalidated,
			NeedsRefresh: true,
		}, nil
	}

	return &SessionValidation{SessionID: session.ID, Valid: true, Status: enums.SessionStatusActive}, nil
}

// CompleteSession marks an active session completed once the external order
// placement succeeded. Only the session's owner may complete it.
func (s *service) CompleteSession(ctx context.Context, sessionID, userID uuid.UUID) (*models.CheckoutSession, error) {
	session, err := s.loadOwnedSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if session.Status != enums.SessionStatusActive || !session.ExpiresAt.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeSessionInvalid,
			"session must be active to complete").
			WithDetails(map[string]any{"status": session.Status.String()})
	}

	affected, err := s.sessions.Complete(ctx, session.ID, now)
	if err != nil {
		return nil, wrapStore(err, "complete checkout session")
	}
	// The update only touches still-active rows, so losing a race to
	// invalidation or expiry surfaces here instead of overwriting it.
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeSessionInvalid,
			"session left the active state before completion").
			WithDetails(map[string]any{"session_id": session.ID})
	}
	session.Status = enums.SessionStatusCompleted
	session.CompletedAt = &now
	return session, nil
}

// loadOwnedSession fetches a session and checks it belongs to userID. A
// session owned by someone else reads as missing so session ids cannot be
// probed across accounts.
func (s *service) loadOwnedSession(ctx context.Context, sessionID, userID uuid.UUID) (*models.CheckoutSession, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, wrapStore(err, "load checkout session")
	}
	if session == nil || session.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("checkout session %s not found", sessionID))
	}
	return session, nil
}

func wrapStore(err error, action string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
