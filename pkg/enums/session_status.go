package enums

import "fmt"

// SessionStatus tracks the lifecycle of a checkout session.
type SessionStatus string

const (
	SessionStatusActive      SessionStatus = "active"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusExpired     SessionStatus = "expired"
	SessionStatusInvalidated SessionStatus = "invalidated"
)

var validSessionStatuses = []SessionStatus{
	SessionStatusActive,
	SessionStatusCompleted,
	SessionStatusExpired,
	SessionStatusInvalidated,
}

// String implements fmt.Stringer.
func (s SessionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SessionStatus.
func (s SessionStatus) IsValid() bool {
	for _, candidate := range validSessionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSessionStatus converts raw input into a SessionStatus.
func ParseSessionStatus(value string) (SessionStatus, error) {
	for _, candidate := range validSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid session status %q", value)
}
