package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidToken is returned for confirmation tokens that are not in the
// issued format. Callers must not look such tokens up in storage.
var ErrInvalidToken = fmt.Errorf("%w: malformed subscription token", ErrValidation)

// NewSubscriptionToken returns a fresh random confirmation token (UUIDv4,
// canonical hyphenated form).
func NewSubscriptionToken() string {
	return uuid.NewString()
}

// ParseSubscriptionToken checks that s has the issued token format and
// returns its canonical form.
func ParseSubscriptionToken(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil || len(s) != 36 {
		return "", ErrInvalidToken
	}
	return id.String(), nil
}
