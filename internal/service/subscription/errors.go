package subscription

import "errors"

// Sentinel errors for the subscription service layer.
var (
	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("subscription not found")

	// ErrTokenExists is returned by stores when a token is already stored.
	ErrTokenExists = errors.New("subscription token already exists")

	// ErrStorage wraps any store failure surfaced by the service.
	ErrStorage = errors.New("subscription storage failure")

	// ErrPublish is returned when the SubscriptionCreated event could not be
	// published after the registration committed.
	ErrPublish = errors.New("subscription event publish failure")
)
