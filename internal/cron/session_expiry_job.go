package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/serialforge/groupbuy-backend/pkg/logger"
)

// SessionExpiryJobParams configure the checkout session sweeper.
type SessionExpiryJobParams struct {
	Logger   *logger.Logger
	Sessions overdueSessionExpirer
}

type overdueSessionExpirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// NewSessionExpiryJob builds the job that expires overdue checkout sessions.
// ValidateSession already expires lazily on read; the sweep keeps sessions
// nobody revisits from lingering as active rows.
func NewSessionExpiryJob(params SessionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session repository required")
	}
	return &sessionExpiryJob{
		logg:     params.Logger,
		sessions: params.Sessions,
		now:      time.Now,
	}, nil
}

type sessionExpiryJob struct {
	logg     *logger.Logger
	sessions overdueSessionExpirer
	now      func() time.Time
}

func (j *sessionExpiryJob) Name() string { return "checkout-session-expiry" }

func (j *sessionExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired, err := j.sessions.ExpireOverdue(ctx, now)
	if err != nil {
		return fmt.Errorf("expire overdue sessions: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"sessions_expired": expired,
	})
	j.logg.Info(logCtx, "checkout session expiry sweep complete")
	return nil
}
