package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/serialforge/groupbuy-backend/internal/cart"
	"github.com/serialforge/groupbuy-backend/pkg/db/models"
	"github.com/serialforge/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/serialforge/groupbuy-backend/pkg/errors"
	"github.com/serialforge/groupbuy-backend/pkg/metrics"
	"github.com/serialforge/groupbuy-backend/pkg/pricing"
)

// Outcome labels what a merge call actually did.
type Outcome string

const (
	// OutcomeMerged means guest items were folded into an existing user cart.
	OutcomeMerged Outcome = "merged"
	// OutcomeClaimed means the guest cart was re-owned in place because the
	// user had no cart of their own.
	OutcomeClaimed Outcome = "claimed"
	// OutcomeNoop means there was nothing to merge.
	OutcomeNoop Outcome = "noop"
)

// Result is the outcome of a merge call.
type Result struct {
	Outcome    Outcome   `json:"outcome"`
	UserCartID uuid.UUID `json:"user_cart_id"`
	Report     *Report   `json:"report"`
}

// Service folds guest carts into user carts on login.
type Service interface {
	ShouldPromptMerge(ctx context.Context, guestToken string, userID uuid.UUID) (bool, error)
	Preview(ctx context.Context, guestToken string, userID uuid.UUID) (*Report, error)
	Merge(ctx context.Context, guestToken string, userID uuid.UUID, confirmed bool) (*Result, error)
	History(ctx context.Context, userID uuid.UUID) ([]models.CartMergeAudit, error)
}

type service struct {
	carts   cart.CartRepository
	tx      cart.TxRunner
	audits  AuditStore
	policy  Policy
	metrics *metrics.CartMetrics
	now     func() time.Time
}

// NewService builds a merge service. Metrics may be nil.
func NewService(carts cart.CartRepository, tx cart.TxRunner, audits AuditStore, policy Policy, m *metrics.CartMetrics) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if audits == nil {
		return nil, fmt.Errorf("audit store required")
	}
	return &service{
		carts:   carts,
		tx:      tx,
		audits:  audits,
		policy:  policy,
		metrics: m,
		now:     time.Now,
	}, nil
}

// ShouldPromptMerge reports whether logging in with this guest token should
// show the user a merge confirmation prompt.
func (s *service) ShouldPromptMerge(ctx context.Context, guestToken string, userID uuid.UUID) (bool, error) {
	guestView, err := s.loadGuestView(ctx, guestToken)
	if err != nil {
		return false, err
	}
	if guestView.IsEmpty() {
		return false, nil
	}
	return s.policy.RequiresConfirmation(&guestView.Cart, userID, s.now()), nil
}

// Preview computes the merge report without applying any writes.
func (s *service) Preview(ctx context.Context, guestToken string, userID uuid.UUID) (*Report, error) {
	guestView, err := s.loadGuestView(ctx, guestToken)
	if err != nil {
		return nil, err
	}
	if guestView.IsEmpty() {
		return NewReport(), nil
	}
	userView, err := s.loadUserView(ctx, userID)
	if err != nil {
		return nil, err
	}
	report, _ := buildPlan(guestView, userView)
	return report, nil
}

// Merge folds the guest cart into the user's cart. A stale guest cart with
// no prior tie to this user needs confirmed=true, otherwise the call fails
// with a preview report attached so the caller can render the prompt.
func (s *service) Merge(ctx context.Context, guestToken string, userID uuid.UUID, confirmed bool) (*Result, error) {
	result, err := s.merge(ctx, guestToken, userID, confirmed)
	switch {
	case err == nil:
		s.metrics.IncMergeOutcome(string(result.Outcome))
	case pkgerrors.IsCode(err, pkgerrors.CodeConfirmationRequired):
		s.metrics.IncMergeOutcome("confirmation_required")
	default:
		s.metrics.IncMergeOutcome("error")
	}
	return result, err
}

func (s *service) merge(ctx context.Context, guestToken string, userID uuid.UUID, confirmed bool) (*Result, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	guestView, err := s.loadGuestView(ctx, guestToken)
	if err != nil {
		return nil, err
	}

	userCart, err := s.carts.FindLiveByOwner(ctx, cart.UserOwner(userID))
	if err != nil {
		return nil, wrapStore(err, "load user cart")
	}

	// Nothing to merge: no live guest cart, or an empty one. A guest cart
	// already folded in by a previous call lands here too, so replaying a
	// merge is a clean no-op.
	if guestView.IsEmpty() {
		result := &Result{Outcome: OutcomeNoop, Report: NewReport()}
		if userCart != nil {
			result.UserCartID = userCart.ID
		}
		return result, nil
	}

	now := s.now()
	if s.policy.RequiresConfirmation(&guestView.Cart, userID, now) && !confirmed {
		var userView *cart.CartView
		if userCart != nil {
			userView, err = s.carts.GetWithItems(ctx, userCart.ID)
			if err != nil {
				return nil, wrapStore(err, "load user cart items")
			}
		}
		preview, _ := buildPlan(guestView, userView)
		return nil, pkgerrors.New(pkgerrors.CodeConfirmationRequired,
			"guest cart is stale; explicit confirmation required to merge").
			WithDetails(preview)
	}

	// No user cart at all: re-own the guest cart in place instead of moving
	// items row by row.
	if userCart == nil {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.carts.WithTx(tx).Reown(ctx, guestView.Cart.ID, userID)
		})
		if err != nil {
			return nil, wrapStore(err, "claim guest cart")
		}
		return &Result{Outcome: OutcomeClaimed, UserCartID: guestView.Cart.ID, Report: NewReport()}, nil
	}

	userView, err := s.carts.GetWithItems(ctx, userCart.ID)
	if err != nil {
		return nil, wrapStore(err, "load user cart items")
	}

	report, plan := buildPlan(guestView, userView)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)

		if err := carts.BumpVersion(ctx, userCart.ID, nil, now); err != nil {
			return err
		}
		for _, set := range plan.sets {
			if err := carts.SetItemQuantity(ctx, set.rowID, set.quantity); err != nil {
				return err
			}
		}
		for i := range plan.inserts {
			row := plan.inserts[i]
			row.AddedAt = now
			if err := carts.InsertItem(ctx, &row); err != nil {
				return err
			}
		}
		if err := carts.MarkMerged(ctx, guestView.Cart.ID, userCart.ID, userID); err != nil {
			return err
		}
		if err := carts.ClearItems(ctx, guestView.Cart.ID); err != nil {
			return err
		}

		encoded, err := json.Marshal(report)
		if err != nil {
			return err
		}
		return s.audits.WithTx(tx).Create(ctx, &models.CartMergeAudit{
			GuestCartID:    guestView.Cart.ID,
			UserCartID:     userCart.ID,
			UserID:         userID,
			AddedCount:     len(report.Added),
			CombinedCount:  len(report.Combined),
			RemovedCount:   len(report.Removed),
			DroppedItemIDs: report.DroppedItemIDs(),
			Report:         string(encoded),
		})
	})
	if err != nil {
		return nil, wrapStore(err, "apply cart merge")
	}

	return &Result{Outcome: OutcomeMerged, UserCartID: userCart.ID, Report: report}, nil
}

// History returns the audit trail of merges into the user's live cart,
// newest first. A user without a cart has an empty history.
func (s *service) History(ctx context.Context, userID uuid.UUID) ([]models.CartMergeAudit, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	record, err := s.carts.FindLiveByOwner(ctx, cart.UserOwner(userID))
	if err != nil {
		return nil, wrapStore(err, "load user cart")
	}
	if record == nil {
		return []models.CartMergeAudit{}, nil
	}
	audits, err := s.audits.ListByUserCart(ctx, record.ID)
	if err != nil {
		return nil, wrapStore(err, "load merge history")
	}
	return audits, nil
}

// loadGuestView loads the guest cart with items, or an empty view when no
// live guest cart exists.
func (s *service) loadGuestView(ctx context.Context, guestToken string) (*cart.CartView, error) {
	if guestToken == "" {
		return &cart.CartView{}, nil
	}
	record, err := s.carts.FindLiveByOwner(ctx, cart.GuestOwner(guestToken))
	if err != nil {
		return nil, wrapStore(err, "load guest cart")
	}
	if record == nil {
		return &cart.CartView{}, nil
	}
	view, err := s.carts.GetWithItems(ctx, record.ID)
	if err != nil {
		return nil, wrapStore(err, "load guest cart items")
	}
	return view, nil
}

func (s *service) loadUserView(ctx context.Context, userID uuid.UUID) (*cart.CartView, error) {
	record, err := s.carts.FindLiveByOwner(ctx, cart.UserOwner(userID))
	if err != nil {
		return nil, wrapStore(err, "load user cart")
	}
	if record == nil {
		return nil, nil
	}
	view, err := s.carts.GetWithItems(ctx, record.ID)
	if err != nil {
		return nil, wrapStore(err, "load user cart items")
	}
	return view, nil
}

type quantitySet struct {
	rowID    uuid.UUID
	quantity int
}

// applyPlan carries the concrete writes a merge would perform; dry runs
// discard it and keep only the report.
type applyPlan struct {
	sets    []quantitySet
	inserts []models.CartItem
}

// buildPlan walks the guest items once and produces both the user-facing
// report and the store writes that realize it. Pure function of the two
// views, so preview and real merge cannot disagree.
func buildPlan(guestView, userView *cart.CartView) (*Report, *applyPlan) {
	report := NewReport()
	plan := &applyPlan{}

	userLines := map[uuid.UUID]models.CartItem{}
	if userView != nil {
		for _, item := range userView.Items {
			userLines[item.Row.ItemID] = item.Row
		}
	}

	for _, guestItem := range guestView.Items {
		row := guestItem.Row
		if guestItem.Catalog == nil {
			report.Removed = append(report.Removed, RemovedEntry{
				ItemID:   row.ItemID,
				Name:     row.NameAtAdd,
				Quantity: row.Quantity,
				Reason:   enums.DropReasonListingRemoved,
			})
			continue
		}
		if !guestItem.Catalog.InStock {
			report.Removed = append(report.Removed, RemovedEntry{
				ItemID:   row.ItemID,
				Name:     guestItem.Catalog.Name,
				Quantity: row.Quantity,
				Reason:   enums.DropReasonSoldOut,
			})
			continue
		}

		if existing, ok := userLines[row.ItemID]; ok {
			combined := existing.Quantity + row.Quantity
			report.Combined = append(report.Combined, CombinedEntry{
				ItemID:   row.ItemID,
				Name:     guestItem.Catalog.Name,
				Previous: existing.Quantity,
				Added:    row.Quantity,
				New:      combined,
			})
			plan.sets = append(plan.sets, quantitySet{rowID: existing.ID, quantity: combined})
			continue
		}

		report.Added = append(report.Added, AddedEntry{
			ItemID:    row.ItemID,
			Name:      guestItem.Catalog.Name,
			Quantity:  row.Quantity,
			UnitPrice: pricing.For(guestItem.Catalog.Finish),
		})
		if userView != nil {
			plan.inserts = append(plan.inserts, models.CartItem{
				CartID:       userView.Cart.ID,
				ItemID:       row.ItemID,
				Quantity:     row.Quantity,
				PriceAtAdd:   pricing.Cents(guestItem.Catalog.Finish),
				NameAtAdd:    guestItem.Catalog.Name,
				FinishAtAdd:  guestItem.Catalog.Finish,
				InStockAtAdd: guestItem.Catalog.InStock,
			})
		}
	}

	return report, plan
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
