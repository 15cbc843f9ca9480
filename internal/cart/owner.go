package cart

import (
	"fmt"

	"github.com/google/uuid"
)

// OwnerRef identifies the live owner of a cart: an authenticated user or an
// anonymous guest token, never both. The guest token is opaque here; the
// HTTP layer issues and persists it.
type OwnerRef struct {
	UserID  *uuid.UUID
	GuestID *string
}

// UserOwner builds an OwnerRef for an authenticated user.
func UserOwner(id uuid.UUID) OwnerRef {
	return OwnerRef{UserID: &id}
}

// GuestOwner builds an OwnerRef for an anonymous guest token.
func GuestOwner(token string) OwnerRef {
	return OwnerRef{GuestID: &token}
}

// Key returns a stable string key for logging and per-client serialization.
func (o OwnerRef) Key() string {
	if o.UserID != nil {
		return "user:" + o.UserID.String()
	}
	if o.GuestID != nil {
		return "guest:" + *o.GuestID
	}
	return ""
}

// validate rejects malformed refs. Passing neither or both owners is a
// caller bug, so this surfaces as a plain error rather than a typed outcome.
func (o OwnerRef) validate() error {
	hasUser := o.UserID != nil && *o.UserID != uuid.Nil
	hasGuest := o.GuestID != nil && *o.GuestID != ""
	if hasUser == hasGuest {
		return fmt.Errorf("owner ref must carry exactly one of user id or guest id")
	}
	return nil
}
