package enums

import "fmt"

// ItemFinish identifies the finish applied to a serialized piece. Pricing is
// derived from the finish, never stored on the catalog row.
type ItemFinish string

const (
	FinishStandard  ItemFinish = "standard"
	FinishBrushed   ItemFinish = "brushed"
	FinishPolished  ItemFinish = "polished"
	FinishPatina    ItemFinish = "patina"
	FinishPrototype ItemFinish = "prototype"
)

var validItemFinishes = []ItemFinish{
	FinishStandard,
	FinishBrushed,
	FinishPolished,
	FinishPatina,
	FinishPrototype,
}

// String implements fmt.Stringer.
func (f ItemFinish) String() string {
	return string(f)
}

// IsValid reports whether the value is a known ItemFinish.
func (f ItemFinish) IsValid() bool {
	for _, candidate := range validItemFinishes {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseItemFinish converts raw input into an ItemFinish.
func ParseItemFinish(value string) (ItemFinish, error) {
	for _, candidate := range validItemFinishes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item finish %q", value)
}
