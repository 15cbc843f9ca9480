package merge

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/serialforge/groupbuy-backend/pkg/db/models"
)

func TestIsFreshStrictBoundary(t *testing.T) {
	t.Parallel()

	policy := Policy{FreshnessThreshold: 24 * time.Hour}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if !policy.IsFresh(now.Add(-24*time.Hour+time.Millisecond), now) {
		t.Fatal("just under the threshold must be fresh")
	}
	if policy.IsFresh(now.Add(-24*time.Hour), now) {
		t.Fatal("exactly at the threshold must be stale")
	}
	if policy.IsFresh(now.Add(-24*time.Hour-time.Millisecond), now) {
		t.Fatal("past the threshold must be stale")
	}
}

func TestRequiresConfirmationSameUserExemption(t *testing.T) {
	t.Parallel()

	policy := Policy{FreshnessThreshold: 24 * time.Hour}
	now := time.Now()
	userID := uuid.New()
	otherID := uuid.New()

	stale := &models.Cart{LastActivityAt: now.Add(-48 * time.Hour), PreviousUserID: &userID}
	if policy.RequiresConfirmation(stale, userID, now) {
		t.Fatal("stale cart previously owned by the same user must auto-merge")
	}
	if !policy.RequiresConfirmation(stale, otherID, now) {
		t.Fatal("stale cart previously owned by another user needs confirmation")
	}

	fresh := &models.Cart{LastActivityAt: now.Add(-time.Hour)}
	if policy.RequiresConfirmation(fresh, userID, now) {
		t.Fatal("fresh cart must auto-merge regardless of prior owner")
	}
}
