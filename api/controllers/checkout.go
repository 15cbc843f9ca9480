package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/serialforge/groupbuy-backend/api/middleware"
	"github.com/serialforge/groupbuy-backend/api/responses"
	cartsvc "github.com/serialforge/groupbuy-backend/internal/cart"
	checkoutsvc "github.com/serialforge/groupbuy-backend/internal/checkout"
	"github.com/serialforge/groupbuy-backend/pkg/db/models"
	pkgerrors "github.com/serialforge/groupbuy-backend/pkg/errors"
	"github.com/serialforge/groupbuy-backend/pkg/logger"
)

func requestUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "checkout requires an authenticated user")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}

// CheckoutSessionCreate opens a checkout session over the user's live cart,
// pinning its version and content hash.
func CheckoutSessionCreate(svc checkoutsvc.Service, carts cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requestUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := carts.GetCart(r.Context(), cartsvc.UserOwner(userID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CreateSession(r.Context(), view.Cart.ID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newSessionResponse(session))
	}
}

// CheckoutSessionValidate re-checks a session against its cart. Drift and
// expiry come back as data, not errors. Sessions belonging to another user
// read as not found.
func CheckoutSessionValidate(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requestUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID, err := parseUUIDParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		validation, err := svc.ValidateSession(r.Context(), sessionID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, validation)
	}
}

// CheckoutSessionComplete marks an active session completed. Only the
// session's owner may complete it.
func CheckoutSessionComplete(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requestUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID, err := parseUUIDParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CompleteSession(r.Context(), sessionID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

type sessionResponse struct {
	ID                 uuid.UUID  `json:"id"`
	CartID             uuid.UUID  `json:"cart_id"`
	CartVersionAtStart int64      `json:"cart_version_at_start"`
	CartHash           string     `json:"cart_hash"`
	Status             string     `json:"status"`
	ExpiresAt          time.Time  `json:"expires_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func newSessionResponse(session *models.CheckoutSession) sessionResponse {
	if session == nil {
		return sessionResponse{}
	}
	return sessionResponse{
		ID:                 session.ID,
		CartID:             session.CartID,
		CartVersionAtStart: session.CartVersionAtStart,
		CartHash:           session.CartHash,
		Status:             string(session.Status),
		ExpiresAt:          session.ExpiresAt,
		CompletedAt:        session.CompletedAt,
		CreatedAt:          session.CreatedAt,
	}
}
