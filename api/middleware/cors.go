package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/serialforge/groupbuy-backend/pkg/env"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000",             // local storefront dev
	"https://shop.serialforge.io",       // storefront
	"https://staging.shop.serialforge.io",
}

// CORS returns middleware that applies the storefront origin policy.
// GROUPBUY_CORS_ORIGINS (comma-separated) overrides the built-in list.
// Credentials stay enabled since the guest cart rides on a cookie.
func CORS() func(http.Handler) http.Handler {
	origins := defaultCORSOrigins
	if raw := env.Get("GROUPBUY_CORS_ORIGINS", ""); raw != "" {
		origins = origins[:0:0]
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
