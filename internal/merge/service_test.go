package merge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/serialforge/groupbuy-backend/internal/cart"
	"github.com/serialforge/groupbuy-backend/pkg/db/models"
	"github.com/serialforge/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/serialforge/groupbuy-backend/pkg/errors"
)

func TestMergeIntoEmptyUserCart(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	userID := uuid.New()
	itemA := repo.seedListing("Serial 101", true)
	itemB := repo.seedListing("Serial 102", true)
	guest := repo.seedGuestCart("guest-1", time.Now())
	repo.seedLine(guest.ID, itemA.ID, 2)
	repo.seedLine(guest.ID, itemB.ID, 1)
	repo.seedUserCart(userID)

	svc := newTestService(t, repo)
	result, err := svc.Merge(context.Background(), "guest-1", userID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeMerged {
		t.Fatalf("expected merged, got %s", result.Outcome)
	}
	if len(result.Report.Added) != 2 || len(result.Report.Combined) != 0 {
		t.Fatalf("expected 2 added / 0 combined, got %d/%d",
			len(result.Report.Added), len(result.Report.Combined))
	}

	userView, err := repo.GetWithItems(context.Background(), result.UserCartID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(userView.Items) != 2 {
		t.Fatalf("expected user cart to hold 2 lines, got %d", len(userView.Items))
	}
	if userView.Cart.Version != 1 {
		t.Fatalf("merge must bump the user cart version, got %d", userView.Cart.Version)
	}

	// Guest cart survives as a tombstone with no items.
	tombstone := repo.carts[guest.ID]
	if tombstone.MergedIntoCartID == nil || *tombstone.MergedIntoCartID != result.UserCartID {
		t.Fatalf("guest cart not marked merged: %+v", tombstone)
	}
	if tombstone.PreviousUserID == nil || *tombstone.PreviousUserID != userID {
		t.Fatalf("guest cart previous user not recorded: %+v", tombstone)
	}
	for _, row := range repo.items {
		if row.CartID == guest.ID {
			t.Fatal("guest cart items must be deleted after merge")
		}
	}

	if len(repo.audits) != 1 {
		t.Fatalf("expected one audit row, got %d", len(repo.audits))
	}
	audit := repo.audits[0]
	if audit.AddedCount != 2 || audit.CombinedCount != 0 || audit.RemovedCount != 0 {
		t.Fatalf("unexpected audit counts: %+v", audit)
	}

	// Replaying the merge is a no-op with an empty report.
	again, err := svc.Merge(context.Background(), "guest-1", userID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Outcome != OutcomeNoop || !again.Report.IsEmpty() {
		t.Fatalf("replayed merge must be an empty no-op, got %+v", again)
	}
}

func TestMergeCombinesSharedLines(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	userID := uuid.New()
	itemA := repo.seedListing("Serial 103", true)
	guest := repo.seedGuestCart("guest-2", time.Now())
	repo.seedLine(guest.ID, itemA.ID, 3)
	userCart := repo.seedUserCart(userID)
	repo.seedLine(userCart.ID, itemA.ID, 2)

	svc := newTestService(t, repo)
	result, err := svc.Merge(context.Background(), "guest-2", userID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Report.Combined) != 1 || len(result.Report.Added) != 0 {
		t.Fatalf("expected a single combined entry, got %+v", result.Report)
	}
	entry := result.Report.Combined[0]
	if entry.Previous != 2 || entry.Added != 3 || entry.New != 5 {
		t.Fatalf("unexpected combine accounting: %+v", entry)
	}

	var lines []models.CartItem
	for _, row := range repo.items {
		if row.CartID == userCart.ID {
			lines = append(lines, *row)
		}
	}
	if len(lines) != 1 || lines[0].Quantity != 5 {
		t.Fatalf("expected one row with quantity 5, got %+v", lines)
	}
}

func TestMergeDropsUnavailableItems(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	userID := uuid.New()
	soldOut := repo.seedListing("Serial 104", false)
	guest := repo.seedGuestCart("guest-3", time.Now())
	repo.seedLine(guest.ID, soldOut.ID, 1)
	removed := repo.seedLine(guest.ID, uuid.New(), 2) // listing never existed
	repo.seedUserCart(userID)

	svc := newTestService(t, repo)
	result, err := svc.Merge(context.Background(), "guest-3", userID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Report.Removed) != 2 {
		t.Fatalf("expected both lines dropped, got %+v", result.Report)
	}
	reasons := map[uuid.UUID]enums.DropReason{}
	for _, dropped := range result.Report.Removed {
		reasons[dropped.ItemID] = dropped.Reason
	}
	if reasons[soldOut.ID] != enums.DropReasonSoldOut {
		t.Fatalf("expected sold_out, got %s", reasons[soldOut.ID])
	}
	if reasons[removed.ItemID] != enums.DropReasonListingRemoved {
		t.Fatalf("expected listing_removed, got %s", reasons[removed.ItemID])
	}
	if len(repo.audits) != 1 || len(repo.audits[0].DroppedItemIDs) != 2 {
		t.Fatalf("expected audit with 2 dropped ids, got %+v", repo.audits)
	}
}

func TestMergeSamePreviousUserSkipsConfirmation(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	userID := uuid.New()
	item := repo.seedListing("Serial 105", true)
	guest := repo.seedGuestCart("guest-4", time.Now().Add(-48*time.Hour))
	guest.PreviousUserID = &userID
	repo.seedLine(guest.ID, item.ID, 1)
	repo.seedUserCart(userID)

	svc := newTestService(t, repo)
	prompt, err := svc.ShouldPromptMerge(context.Background(), "guest-4", userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompt {
		t.Fatal("same previous user must not be prompted")
	}

	result, err := svc.Merge(context.Background(), "guest-4", userID, false)
	if err != nil {
		t.Fatalf("stale cart with same previous user must auto-merge: %v", err)
	}
	if result.Outcome != OutcomeMerged {
		t.Fatalf("expected merged, got %s", result.Outcome)
	}
}

func TestMergeStaleCartRequiresConfirmation(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	userID := uuid.New()
	item := repo.seedListing("Serial 106", true)
	guest := repo.seedGuestCart("guest-5", time.Now().Add(-48*time.Hour))
	repo.seedLine(guest.ID, item.ID, 2)
	userCart := repo.seedUserCart(userID)

	svc := newTestService(t, repo)
	prompt, err := svc.ShouldPromptMerge(context.Background(), "guest-5", userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !prompt {
		t.Fatal("stale cart with unknown prior owner must prompt")
	}

	_, err = svc.Merge(context.Background(), "guest-5", userID, false)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConfirmationRequired) {
		t.Fatalf("expected confirmation required, got %v", err)
	}
	preview, ok := pkgerrors.As(err).Details().(*Report)
	if !ok || preview.IsEmpty() {
		t.Fatalf("expected populated preview report in details, got %v", pkgerrors.As(err).Details())
	}

	// No writes happened.
	if repo.carts[userCart.ID].Version != 0 {
		t.Fatal("rejected merge must not bump the user cart version")
	}
	if repo.carts[guest.ID].MergedIntoCartID != nil {
		t.Fatal("rejected merge must not mark the guest cart merged")
	}
	if len(repo.audits) != 0 {
		t.Fatal("rejected merge must not write an audit row")
	}

	// With the confirm flag the same merge goes through.
	result, err := svc.Merge(context.Background(), "guest-5", userID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeMerged || len(result.Report.Added) != 1 {
		t.Fatalf("expected confirmed merge to apply, got %+v", result)
	}
}

func TestMergeClaimsCartWhenUserHasNone(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	userID := uuid.New()
	item := repo.seedListing("Serial 107", true)
	guest := repo.seedGuestCart("guest-6", time.Now())
	repo.seedLine(guest.ID, item.ID, 1)

	svc := newTestService(t, repo)
	result, err := svc.Merge(context.Background(), "guest-6", userID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeClaimed {
		t.Fatalf("expected claimed, got %s", result.Outcome)
	}
	if result.UserCartID != guest.ID {
		t.Fatal("claim must keep the guest cart row")
	}

	claimed := repo.carts[guest.ID]
	if claimed.UserID == nil || *claimed.UserID != userID {
		t.Fatalf("claimed cart must carry the user id: %+v", claimed)
	}
	if claimed.GuestID != nil || claimed.ExpiresAt != nil {
		t.Fatalf("claim must clear guest token and expiry: %+v", claimed)
	}
}

func TestMergeWithNoGuestCartIsNoop(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	userID := uuid.New()
	userCart := repo.seedUserCart(userID)

	svc := newTestService(t, repo)
	result, err := svc.Merge(context.Background(), "missing-token", userID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeNoop || !result.Report.IsEmpty() {
		t.Fatalf("expected empty no-op, got %+v", result)
	}
	if result.UserCartID != userCart.ID {
		t.Fatal("no-op should still point at the user's cart")
	}
}

func TestMergeHistoryTracksAuditRows(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	userID := uuid.New()
	item := repo.seedListing("Serial 108", true)
	guest := repo.seedGuestCart("guest-7", time.Now())
	repo.seedLine(guest.ID, item.ID, 2)
	userCart := repo.seedUserCart(userID)

	svc := newTestService(t, repo)

	history, err := svc.History(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history before any merge, got %d rows", len(history))
	}

	if _, err := svc.Merge(context.Background(), "guest-7", userID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err = svc.History(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one audit row after merge, got %d", len(history))
	}
	audit := history[0]
	if audit.UserCartID != userCart.ID || audit.GuestCartID != guest.ID {
		t.Fatalf("audit row points at the wrong carts: %+v", audit)
	}
	if audit.AddedCount != 1 {
		t.Fatalf("expected one added item in the audit, got %d", audit.AddedCount)
	}

	// A user with no cart reads back an empty history, not an error.
	history, err = svc.History(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history for cartless user, got %d rows", len(history))
	}
}

func newTestService(t *testing.T, repo *memRepo) Service {
	t.Helper()
	svc, err := NewService(repo, memTx{repo: repo}, memAudits{repo: repo}, Policy{FreshnessThreshold: 24 * time.Hour}, nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

// memRepo backs merge tests: it is the cart repository, the transaction
// runner, and the audit store in one.
type memRepo struct {
	mu       sync.Mutex
	carts    map[uuid.UUID]*models.Cart
	items    map[uuid.UUID]*models.CartItem
	listings map[uuid.UUID]*models.CatalogItem
	audits   []models.CartMergeAudit
}

func newMemRepo() *memRepo {
	return &memRepo{
		carts:    map[uuid.UUID]*models.Cart{},
		items:    map[uuid.UUID]*models.CartItem{},
		listings: map[uuid.UUID]*models.CatalogItem{},
	}
}

func (m *memRepo) seedListing(name string, inStock bool) *models.CatalogItem {
	listing := &models.CatalogItem{ID: uuid.New(), SerialNo: name, Name: name, Finish: enums.FinishStandard, InStock: inStock}
	m.listings[listing.ID] = listing
	return listing
}

func (m *memRepo) seedGuestCart(token string, lastActivity time.Time) *models.Cart {
	record := &models.Cart{ID: uuid.New(), GuestID: &token, LastActivityAt: lastActivity}
	m.carts[record.ID] = record
	return record
}

func (m *memRepo) seedUserCart(userID uuid.UUID) *models.Cart {
	id := userID
	record := &models.Cart{ID: uuid.New(), UserID: &id, LastActivityAt: time.Now()}
	m.carts[record.ID] = record
	return record
}

func (m *memRepo) seedLine(cartID, itemID uuid.UUID, qty int) *models.CartItem {
	row := &models.CartItem{ID: uuid.New(), CartID: cartID, ItemID: itemID, Quantity: qty, NameAtAdd: "line", AddedAt: time.Now()}
	m.items[row.ID] = row
	return row
}

func (m *memRepo) WithTx(tx *gorm.DB) cart.CartRepository { return m }

func (m *memRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.carts[id]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (m *memRepo) FindLiveByOwner(ctx context.Context, owner cart.OwnerRef) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.carts {
		if record.MergedIntoCartID != nil {
			continue
		}
		if owner.UserID != nil && record.UserID != nil && *record.UserID == *owner.UserID {
			copied := *record
			return &copied, nil
		}
		if owner.GuestID != nil && record.GuestID != nil && *record.GuestID == *owner.GuestID {
			copied := *record
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memRepo) Create(ctx context.Context, record *models.Cart) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	copied := *record
	m.carts[record.ID] = &copied
	return record, nil
}

func (m *memRepo) GetWithItems(ctx context.Context, id uuid.UUID) (*cart.CartView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.carts[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	view := &cart.CartView{Cart: *record}
	for _, row := range m.items {
		if row.CartID != id {
			continue
		}
		var listing *models.CatalogItem
		if found, ok := m.listings[row.ItemID]; ok {
			copied := *found
			listing = &copied
		}
		view.Items = append(view.Items, cart.ItemView{Row: *row, Catalog: listing})
	}
	return view, nil
}

func (m *memRepo) BumpVersion(ctx context.Context, cartID uuid.UUID, expectedVersion *int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.carts[cartID]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	if expectedVersion != nil && record.Version != *expectedVersion {
		return pkgerrors.New(pkgerrors.CodeVersionConflict, "stale version")
	}
	record.Version++
	record.LastActivityAt = now
	return nil
}

func (m *memRepo) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.items {
		if row.CartID == cartID && row.ItemID == itemID {
			copied := *row
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memRepo) InsertItem(ctx context.Context, row *models.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	copied := *row
	m.items[row.ID] = &copied
	return nil
}

func (m *memRepo) SetItemQuantity(ctx context.Context, rowID uuid.UUID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.items[rowID]; ok {
		row.Quantity = quantity
	}
	return nil
}

func (m *memRepo) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, row := range m.items {
		if row.CartID == cartID && row.ItemID == itemID {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *memRepo) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, row := range m.items {
		if row.CartID == cartID {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *memRepo) MarkMerged(ctx context.Context, guestCartID, targetCartID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.carts[guestCartID]
	if !ok || record.MergedIntoCartID != nil {
		return pkgerrors.New(pkgerrors.CodeConflict, "cart already merged")
	}
	target := targetCartID
	user := userID
	record.MergedIntoCartID = &target
	record.PreviousUserID = &user
	return nil
}

func (m *memRepo) Reown(ctx context.Context, cartID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.carts[cartID]
	if !ok || record.MergedIntoCartID != nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	user := userID
	record.UserID = &user
	record.GuestID = nil
	record.ExpiresAt = nil
	return nil
}

func (m *memRepo) DeleteExpiredGuestCarts(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// memTx runs the transactional closure directly; merge tests assert final
// state, not rollback behavior.
type memTx struct {
	repo *memRepo
}

func (t memTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type memAudits struct {
	repo *memRepo
}

func (a memAudits) WithTx(tx *gorm.DB) AuditStore { return a }

func (a memAudits) Create(ctx context.Context, record *models.CartMergeAudit) error {
	a.repo.mu.Lock()
	defer a.repo.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	a.repo.audits = append(a.repo.audits, *record)
	return nil
}

func (a memAudits) ListByUserCart(ctx context.Context, userCartID uuid.UUID) ([]models.CartMergeAudit, error) {
	a.repo.mu.Lock()
	defer a.repo.mu.Unlock()
	var out []models.CartMergeAudit
	for _, audit := range a.repo.audits {
		if audit.UserCartID == userCartID {
			out = append(out, audit)
		}
	}
	return out, nil
}
