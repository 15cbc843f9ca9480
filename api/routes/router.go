package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serialforge/groupbuy-backend/api/controllers"
	"github.com/serialforge/groupbuy-backend/api/middleware"
	cartsvc "github.com/serialforge/groupbuy-backend/internal/cart"
	checkoutsvc "github.com/serialforge/groupbuy-backend/internal/checkout"
	mergesvc "github.com/serialforge/groupbuy-backend/internal/merge"
	"github.com/serialforge/groupbuy-backend/pkg/config"
	"github.com/serialforge/groupbuy-backend/pkg/db"
	"github.com/serialforge/groupbuy-backend/pkg/logger"
	"github.com/serialforge/groupbuy-backend/pkg/redis"
	"github.com/serialforge/groupbuy-backend/pkg/requestq"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	cartService cartsvc.Service,
	cartValidator controllers.CartValidator,
	mergeService mergesvc.Service,
	checkoutService checkoutsvc.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	queues := requestq.NewRegistry()

	var idemStore redis.IdempotencyStore
	var redisP redis.Pinger
	var limiter middleware.RateLimiter
	if redisClient != nil {
		idemStore = redisClient
		redisP = redisClient
		limiter = redisClient
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Guest(cfg.Merge.GuestCartTTL, logg))
		r.Use(middleware.RateLimit(limiter, cfg.RateLimit.Requests, cfg.RateLimit.Window, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(cartService, logg))
			r.Delete("/", controllers.CartClear(cartService, queues, logg))
			r.Get("/validate", controllers.CartValidate(cartService, cartValidator, logg))
			r.Post("/items", controllers.CartAddItem(cartService, queues, logg))
			r.Patch("/items/{itemId}", controllers.CartUpdateItem(cartService, queues, logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(cartService, queues, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireUser(logg))
				r.Get("/merge/check", controllers.MergeCheck(mergeService, logg))
				r.Get("/merge/preview", controllers.MergePreview(mergeService, logg))
				r.Get("/merge/history", controllers.MergeHistory(mergeService, logg))
				r.Post("/merge", controllers.MergeExecute(mergeService, logg))
			})
		})

		r.Route("/v1/checkout", func(r chi.Router) {
			r.Use(middleware.RequireUser(logg))
			r.Post("/sessions", controllers.CheckoutSessionCreate(checkoutService, cartService, logg))
			r.Get("/sessions/{sessionId}/validate", controllers.CheckoutSessionValidate(checkoutService, logg))
			r.Post("/sessions/{sessionId}/complete", controllers.CheckoutSessionComplete(checkoutService, logg))
		})
	})

	r.Get("/api/public/ping", controllers.PublicPing())

	return r
}
