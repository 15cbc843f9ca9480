package middleware

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/serialforge/groupbuy-backend/api/responses"
	pkgerrors "github.com/serialforge/groupbuy-backend/pkg/errors"
	"github.com/serialforge/groupbuy-backend/pkg/logger"
)

// RateLimiter is the fixed-window counter surface the limiter runs on.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit bounds mutating requests per client per window. Reads pass
// through untouched; the version check protects correctness, this only
// protects capacity. Counter failures fail open.
func RateLimit(limiter RateLimiter, limit int64, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limit <= 0 || !isMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			allowed, count, err := limiter.FixedWindowAllow(r.Context(), clientScope(r), limit, window)
			if err != nil {
				logError(r.Context(), logg, "rate limit counter unavailable", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					ctx := logg.WithField(r.Context(), "count", count)
					logg.Warn(ctx, "rate limit exceeded")
				}
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeRateLimited, "too many requests, slow down"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// clientScope prefers the authenticated user, then the guest token, then
// the remote host for clients that carry neither yet.
func clientScope(r *http.Request) string {
	if userID := UserIDFromContext(r.Context()); userID != "" {
		return "user:" + userID
	}
	if guestID := GuestIDFromContext(r.Context()); guestID != "" {
		return "guest:" + guestID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
