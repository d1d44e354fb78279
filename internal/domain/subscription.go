package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus enumerates the states a subscription can be in. The
// string values match the subscription_status enum in Postgres.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionConfirmed SubscriptionStatus = "confirmed"
	SubscriptionFailed    SubscriptionStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionPending, SubscriptionConfirmed, SubscriptionFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal
// transition. Confirmed is terminal.
//
//	pending   -> confirmed  (token confirmation)
//	pending   -> failed     (confirmation email could not be sent)
//	failed    -> pending    (new registration for the same email)
//	failed    -> confirmed  (a token issued before the failure is still honored)
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	switch s {
	case SubscriptionPending:
		return next == SubscriptionConfirmed || next == SubscriptionFailed
	case SubscriptionFailed:
		return next == SubscriptionPending || next == SubscriptionConfirmed
	}
	return false
}

// Subscription is the durable opt-in record for one email address.
type Subscription struct {
	ID           uuid.UUID          `json:"id" db:"id"`
	Email        string             `json:"email" db:"email"`
	Name         string             `json:"name" db:"name"`
	Status       SubscriptionStatus `json:"status" db:"status"`
	SubscribedAt time.Time          `json:"subscribed_at" db:"subscribed_at"`
}

// SubscriptionCreated is published after a registration commits. The JSON
// field names are the wire contract with the delivery worker.
type SubscriptionCreated struct {
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	SubscriptionID    uuid.UUID `json:"subscription_id"`
	SubscriptionToken string    `json:"subscription_token"`
}
