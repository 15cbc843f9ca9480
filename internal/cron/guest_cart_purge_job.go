package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/serialforge/groupbuy-backend/pkg/logger"
)

// GuestCartPurgeJobParams configure the abandoned guest cart purge.
type GuestCartPurgeJobParams struct {
	Logger *logger.Logger
	Carts  expiredGuestCartDeleter
}

type expiredGuestCartDeleter interface {
	DeleteExpiredGuestCarts(ctx context.Context, now time.Time) (int64, error)
}

// NewGuestCartPurgeJob builds the job that deletes guest carts past their
// expiry. Merged tombstones are never touched; they carry the audit history.
func NewGuestCartPurgeJob(params GuestCartPurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	return &guestCartPurgeJob{
		logg:  params.Logger,
		carts: params.Carts,
		now:   time.Now,
	}, nil
}

type guestCartPurgeJob struct {
	logg  *logger.Logger
	carts expiredGuestCartDeleter
	now   func() time.Time
}

func (j *guestCartPurgeJob) Name() string { return "guest-cart-purge" }

func (j *guestCartPurgeJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	purged, err := j.carts.DeleteExpiredGuestCarts(ctx, now)
	if err != nil {
		return fmt.Errorf("purge expired guest carts: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"carts_purged": purged,
	})
	j.logg.Info(logCtx, "guest cart purge complete")
	return nil
}
