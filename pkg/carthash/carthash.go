// Package carthash produces a cheap, order-independent digest of a cart's
// contents. It is used only to detect drift between checkout start and order
// placement; it is not a tamper-evidence mechanism.
package carthash

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Entry is one (item, quantity) pair folded into the digest.
type Entry struct {
	ItemID   uuid.UUID
	Quantity int
}

// emptySentinel keeps the empty-cart digest stable and distinct from the
// digest of any canonical encoding.
const emptySentinel = "groupbuy:empty-cart:v1"

// Sum hashes the entries into a fixed-width hex digest. Entry order does not
// affect the result; any quantity or item change does.
func Sum(entries []Entry) string {
	if len(entries) == 0 {
		return format(xxhash.Sum64String(emptySentinel))
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ItemID.String() < sorted[j].ItemID.String()
	})

	digest := xxhash.New()
	for _, entry := range sorted {
		fmt.Fprintf(digest, "%s:%d;", entry.ItemID, entry.Quantity)
	}
	return format(digest.Sum64())
}

func format(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}
