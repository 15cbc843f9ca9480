package merge

import (
	"time"

	"github.com/google/uuid"

	"github.com/serialforge/groupbuy-backend/pkg/db/models"
)

// Policy decides whether a guest cart may fold into a user's cart without an
// explicit confirmation.
type Policy struct {
	FreshnessThreshold time.Duration
}

// IsFresh reports whether the cart was touched recently enough to auto-merge.
// The boundary is strict: a cart aged exactly at the threshold is stale.
func (p Policy) IsFresh(lastActivityAt, now time.Time) bool {
	return now.Sub(lastActivityAt) < p.FreshnessThreshold
}

// RequiresConfirmation reports whether merging guestCart into userID needs
// the user's explicit consent. A cart previously claimed by this same user
// is exempt from the freshness check: re-absorbing your own cart after a
// logout is never surprising, however old it is.
func (p Policy) RequiresConfirmation(guestCart *models.Cart, userID uuid.UUID, now time.Time) bool {
	if guestCart.PreviousUserID != nil && *guestCart.PreviousUserID == userID {
		return false
	}
	return !p.IsFresh(guestCart.LastActivityAt, now)
}
