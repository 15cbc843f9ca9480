package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/serialforge/groupbuy-backend/api/routes"
	cartsvc "github.com/serialforge/groupbuy-backend/internal/cart"
	"github.com/serialforge/groupbuy-backend/internal/catalog"
	checkoutsvc "github.com/serialforge/groupbuy-backend/internal/checkout"
	mergesvc "github.com/serialforge/groupbuy-backend/internal/merge"
	"github.com/serialforge/groupbuy-backend/internal/repo"
	"github.com/serialforge/groupbuy-backend/pkg/config"
	"github.com/serialforge/groupbuy-backend/pkg/db"
	"github.com/serialforge/groupbuy-backend/pkg/logger"
	"github.com/serialforge/groupbuy-backend/pkg/metrics"
	"github.com/serialforge/groupbuy-backend/pkg/migrate"
	"github.com/serialforge/groupbuy-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	cartMetrics := metrics.NewCartMetrics(prometheus.DefaultRegisterer)
	txRunner := repo.NewTx(dbClient.DB())
	cartRepo := cartsvc.NewRepository(dbClient.DB())
	catalogRepo := catalog.NewRepository(dbClient.DB())

	cartService, err := cartsvc.NewService(cartRepo, txRunner, catalogRepo, cartMetrics, cfg.Merge.GuestCartTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	cartValidator, err := cartsvc.NewValidator(cartRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart validator", err)
		os.Exit(1)
	}

	mergeService, err := mergesvc.NewService(
		cartRepo,
		txRunner,
		mergesvc.NewAuditRepository(dbClient.DB()),
		mergesvc.Policy{FreshnessThreshold: cfg.Merge.FreshnessThreshold},
		cartMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create merge service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(
		checkoutsvc.NewRepository(dbClient.DB()),
		cartRepo,
		txRunner,
		cartMetrics,
		cfg.Checkout.SessionTTL,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, cartService, cartValidator, mergeService, checkoutService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
