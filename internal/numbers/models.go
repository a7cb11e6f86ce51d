package numbers

import (
	"regexp"
	"time"
)

// PhoneNumber is a provisioned inbound/outbound number and its routing label.
type PhoneNumber struct {
	ID        string    `json:"id" db:"id"`
	Number    string    `json:"number" db:"number"`
	Label     string    `json:"label" db:"label"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// IsE164 reports whether number is a valid E.164 number.
func IsE164(number string) bool {
	return e164.MatchString(number)
}
