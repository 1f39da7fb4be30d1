package credential

import (
	"fmt"
	"strings"
	"time"
)

// ExpiryLevel grades how close a token is to expiring.
type ExpiryLevel int

const (
	ExpiryUnknown ExpiryLevel = iota
	ExpiryOK
	ExpirySoon     // within 30 days
	ExpiryImminent // within 7 days
	ExpiryExpired
)

// Expiry is the result of a token expiry check.
type Expiry struct {
	Level     ExpiryLevel
	ExpiresAt time.Time
	Remaining time.Duration
}

// Message returns a human-readable description, or "" when no warning is due.
func (e Expiry) Message() string {
	days := int(e.Remaining.Hours() / 24)
	switch e.Level {
	case ExpiryExpired:
		return fmt.Sprintf("GitHub token expired on %s", e.ExpiresAt.Format(time.DateOnly))
	case ExpiryImminent:
		return fmt.Sprintf("GitHub token expires in %d day(s), on %s", days, e.ExpiresAt.Format(time.DateOnly))
	case ExpirySoon:
		return fmt.Sprintf("GitHub token expires in %d days, on %s", days, e.ExpiresAt.Format(time.DateOnly))
	}
	return ""
}

// CheckExpiry grades an RFC 3339 (or YYYY-MM-DD) expiry date against now.
// An empty value yields ExpiryUnknown without error.
func CheckExpiry(value string, now time.Time) (Expiry, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Expiry{Level: ExpiryUnknown}, nil
	}

	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		at, err = time.Parse(time.DateOnly, value)
		if err != nil {
			return Expiry{Level: ExpiryUnknown}, fmt.Errorf("parsing token expiry %q: %w", value, err)
		}
	}

	remaining := at.Sub(now)
	e := Expiry{ExpiresAt: at, Remaining: remaining}
	switch {
	case remaining <= 0:
		e.Level = ExpiryExpired
	case remaining <= 7*24*time.Hour:
		e.Level = ExpiryImminent
	case remaining <= 30*24*time.Hour:
		e.Level = ExpirySoon
	default:
		e.Level = ExpiryOK
	}
	return e, nil
}
