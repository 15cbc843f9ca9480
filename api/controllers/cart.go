package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/serialforge/groupbuy-backend/api/middleware"
	"github.com/serialforge/groupbuy-backend/api/responses"
	"github.com/serialforge/groupbuy-backend/api/validators"
	cartsvc "github.com/serialforge/groupbuy-backend/internal/cart"
	pkgerrors "github.com/serialforge/groupbuy-backend/pkg/errors"
	"github.com/serialforge/groupbuy-backend/pkg/logger"
	"github.com/serialforge/groupbuy-backend/pkg/pricing"
	"github.com/serialforge/groupbuy-backend/pkg/requestq"
)

// resolveOwner maps the request identity onto a cart owner. Authenticated
// users win over the guest cookie so a logged-in request never mutates the
// guest cart it still carries a cookie for.
func resolveOwner(r *http.Request) (cartsvc.OwnerRef, error) {
	if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return cartsvc.OwnerRef{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
		}
		return cartsvc.UserOwner(userID), nil
	}
	if guestID := middleware.GuestIDFromContext(r.Context()); guestID != "" {
		return cartsvc.GuestOwner(guestID), nil
	}
	return cartsvc.OwnerRef{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "no cart owner on request")
}

// serialized runs fn on the owner's queue so concurrent mutations from the
// same client apply in arrival order. Cross-client races still surface as
// version conflicts.
func serialized(ctx context.Context, queues *requestq.Registry, owner cartsvc.OwnerRef, fn func(context.Context) error) error {
	if queues == nil {
		return fn(ctx)
	}
	return queues.Do(ctx, owner.Key(), fn)
}

// CartFetch returns the owner's live cart, creating one on first touch.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := resolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.GetCart(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(view))
	}
}

type addItemRequest struct {
	ItemID          uuid.UUID `json:"item_id" validate:"required"`
	Quantity        int       `json:"quantity" validate:"required,min=1"`
	ExpectedVersion *int64    `json:"expected_version"`
}

// CartAddItem adds quantity of a catalog item to the owner's cart.
func CartAddItem(svc cartsvc.Service, queues *requestq.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := resolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var view *cartsvc.CartView
		err = serialized(r.Context(), queues, owner, func(ctx context.Context) error {
			current, err := svc.GetCart(ctx, owner)
			if err != nil {
				return err
			}
			view, err = svc.AddItem(ctx, current.Cart.ID, payload.ItemID, payload.Quantity, payload.ExpectedVersion)
			return err
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(view))
	}
}

type updateItemRequest struct {
	Quantity        int    `json:"quantity" validate:"min=0"`
	ExpectedVersion *int64 `json:"expected_version"`
}

// CartUpdateItem sets the quantity of one line. Zero removes the line.
func CartUpdateItem(svc cartsvc.Service, queues *requestq.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := resolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID, err := parseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var view *cartsvc.CartView
		err = serialized(r.Context(), queues, owner, func(ctx context.Context) error {
			current, err := svc.GetCart(ctx, owner)
			if err != nil {
				return err
			}
			view, err = svc.UpdateItemQuantity(ctx, current.Cart.ID, itemID, payload.Quantity, payload.ExpectedVersion)
			return err
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(view))
	}
}

// CartRemoveItem deletes one line. The expected version, when the client
// wants the optimistic guard, travels as a query parameter because DELETE
// bodies do not survive every proxy.
func CartRemoveItem(svc cartsvc.Service, queues *requestq.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := resolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID, err := parseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		expectedVersion, err := validators.ParseOptionalQueryInt64(r, "expected_version")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var view *cartsvc.CartView
		err = serialized(r.Context(), queues, owner, func(ctx context.Context) error {
			current, err := svc.GetCart(ctx, owner)
			if err != nil {
				return err
			}
			view, err = svc.RemoveItem(ctx, current.Cart.ID, itemID, expectedVersion)
			return err
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(view))
	}
}

// CartClear empties the owner's cart without touching its version.
func CartClear(svc cartsvc.Service, queues *requestq.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := resolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var view *cartsvc.CartView
		err = serialized(r.Context(), queues, owner, func(ctx context.Context) error {
			current, err := svc.GetCart(ctx, owner)
			if err != nil {
				return err
			}
			view, err = svc.ClearCart(ctx, current.Cart.ID)
			return err
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(view))
	}
}

// CartValidator re-checks a cart against the live catalog.
type CartValidator interface {
	Validate(ctx context.Context, cartID uuid.UUID) (*cartsvc.ValidationReport, error)
}

// CartValidate re-checks every line against the live catalog without
// mutating anything.
func CartValidate(svc cartsvc.Service, validator CartValidator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := resolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.GetCart(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := validator.Validate(r.Context(), view.Cart.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, report)
	}
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}

type cartItemLine struct {
	ItemID    uuid.UUID       `json:"item_id"`
	Name      string          `json:"name"`
	Finish    string          `json:"finish"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Available bool            `json:"available"`
	AddedAt   time.Time       `json:"added_at"`
}

type cartResponse struct {
	ID             uuid.UUID      `json:"id"`
	Version        int64          `json:"version"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	Items          []cartItemLine `json:"items"`
}

func newCartResponse(view *cartsvc.CartView) cartResponse {
	resp := cartResponse{Items: []cartItemLine{}}
	if view == nil {
		return resp
	}
	resp.ID = view.Cart.ID
	resp.Version = view.Cart.Version
	resp.LastActivityAt = view.Cart.LastActivityAt
	resp.ExpiresAt = view.Cart.ExpiresAt

	for _, item := range view.Items {
		line := cartItemLine{
			ItemID:    item.Row.ItemID,
			Name:      item.Row.NameAtAdd,
			Finish:    string(item.Row.FinishAtAdd),
			Quantity:  item.Row.Quantity,
			UnitPrice: decimal.NewFromInt(int64(item.Row.PriceAtAdd)).Div(decimal.NewFromInt(100)),
			Available: item.Available(),
			AddedAt:   item.Row.AddedAt,
		}
		if item.Catalog != nil {
			line.Name = item.Catalog.Name
			line.Finish = string(item.Catalog.Finish)
			line.UnitPrice = pricing.For(item.Catalog.Finish)
		}
		resp.Items = append(resp.Items, line)
	}
	return resp
}
