package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/serialforge/groupbuy-backend/pkg/logger"
)

// GuestCookieName carries the opaque guest identity. The value has no
// structure; the backend only uses it as a cart owner key.
const GuestCookieName = "gb_guest"

// Guest reads the guest identity cookie, minting one for anonymous visitors
// that do not have it yet. Authenticated requests keep their existing cookie
// (the merge flow needs it) but never get a fresh one.
func Guest(ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if cookie, err := r.Cookie(GuestCookieName); err == nil && cookie.Value != "" {
				ctx = WithGuestID(ctx, cookie.Value)
				if logg != nil {
					ctx = logg.WithGuestID(ctx, cookie.Value)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if UserIDFromContext(ctx) != "" {
				next.ServeHTTP(w, r)
				return
			}

			guestID := uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     GuestCookieName,
				Value:    guestID,
				Path:     "/",
				MaxAge:   int(ttl / time.Second),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			ctx = WithGuestID(ctx, guestID)
			if logg != nil {
				ctx = logg.WithGuestID(ctx, guestID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
