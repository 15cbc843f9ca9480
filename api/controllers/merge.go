package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/serialforge/groupbuy-backend/api/middleware"
	"github.com/serialforge/groupbuy-backend/api/responses"
	"github.com/serialforge/groupbuy-backend/api/validators"
	mergesvc "github.com/serialforge/groupbuy-backend/internal/merge"
	pkgerrors "github.com/serialforge/groupbuy-backend/pkg/errors"
	"github.com/serialforge/groupbuy-backend/pkg/logger"
)

func mergeIdentity(r *http.Request) (uuid.UUID, string, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "merge requires an authenticated user")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, middleware.GuestIDFromContext(r.Context()), nil
}

// MergeCheck reports whether the login flow should show a merge prompt for
// the guest cart this request still carries.
func MergeCheck(svc mergesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, guestToken, err := mergeIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		prompt, err := svc.ShouldPromptMerge(r.Context(), guestToken, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"prompt": prompt})
	}
}

// MergePreview returns the per-item accounting a merge would produce,
// without writing anything.
func MergePreview(svc mergesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, guestToken, err := mergeIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Preview(r.Context(), guestToken, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, report)
	}
}

// MergeHistory lists the merge audit rows recorded against the caller's
// cart, newest first.
func MergeHistory(svc mergesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := mergeIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.History(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, history)
	}
}

type mergeRequest struct {
	Confirmed bool `json:"confirmed"`
}

// MergeExecute folds the guest cart into the user's cart. A stale guest cart
// needs confirmed=true or the call comes back as CONFIRMATION_REQUIRED with
// the preview attached.
func MergeExecute(svc mergesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, guestToken, err := mergeIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload mergeRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Merge(r.Context(), guestToken, userID, payload.Confirmed)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
