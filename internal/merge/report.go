package merge

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/serialforge/groupbuy-backend/pkg/enums"
)

// AddedEntry records a guest item inserted into the user cart as a new line.
type AddedEntry struct {
	ItemID    uuid.UUID       `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CombinedEntry records a guest item folded into an existing user line.
type CombinedEntry struct {
	ItemID   uuid.UUID `json:"item_id"`
	Name     string    `json:"name"`
	Previous int       `json:"previous"`
	Added    int       `json:"added"`
	New      int       `json:"new"`
}

// RemovedEntry records a guest item dropped because its listing is gone or
// sold out.
type RemovedEntry struct {
	ItemID   uuid.UUID        `json:"item_id"`
	Name     string           `json:"name"`
	Quantity int              `json:"quantity"`
	Reason   enums.DropReason `json:"reason"`
}

// AdjustedEntry records a quantity the merge reduced on the user's behalf.
type AdjustedEntry struct {
	ItemID   uuid.UUID `json:"item_id"`
	Name     string    `json:"name"`
	Previous int       `json:"previous"`
	Adjusted int       `json:"adjusted"`
}

// Report is the per-item accounting of one merge, real or previewed. Each
// guest item lands in exactly one of the four buckets.
type Report struct {
	Added    []AddedEntry    `json:"added"`
	Combined []CombinedEntry `json:"combined"`
	Removed  []RemovedEntry  `json:"removed"`
	Adjusted []AdjustedEntry `json:"adjusted"`
}

// NewReport returns an empty report with non-nil buckets so JSON encoding is
// stable.
func NewReport() *Report {
	return &Report{
		Added:    []AddedEntry{},
		Combined: []CombinedEntry{},
		Removed:  []RemovedEntry{},
		Adjusted: []AdjustedEntry{},
	}
}

// IsEmpty reports whether the merge touched nothing.
func (r *Report) IsEmpty() bool {
	if r == nil {
		return true
	}
	return len(r.Added) == 0 && len(r.Combined) == 0 && len(r.Removed) == 0 && len(r.Adjusted) == 0
}

// DroppedItemIDs lists the catalog ids of removed entries, for the audit row.
func (r *Report) DroppedItemIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.Removed))
	for _, entry := range r.Removed {
		ids = append(ids, entry.ItemID.String())
	}
	return ids
}
