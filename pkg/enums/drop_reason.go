package enums

import "fmt"

// DropReason explains why a cart item was rejected during validation or merge.
type DropReason string

const (
	DropReasonListingRemoved DropReason = "listing_removed"
	DropReasonSoldOut        DropReason = "sold_out"
)

var validDropReasons = []DropReason{
	DropReasonListingRemoved,
	DropReasonSoldOut,
}

// String implements fmt.Stringer.
func (d DropReason) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DropReason.
func (d DropReason) IsValid() bool {
	for _, candidate := range validDropReasons {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDropReason converts raw input into a DropReason.
func ParseDropReason(value string) (DropReason, error) {
	for _, candidate := range validDropReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid drop reason %q", value)
}
