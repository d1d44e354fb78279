package subscription

import (
	"context"

	"github.com/google/uuid"
	"github.com/ignite/subscriptions/internal/domain"
)

// Store is the persistence boundary for subscriptions and their
// confirmation tokens. Reads on Store run outside any transaction; all
// writes go through InTx.
type Store interface {
	// FetchByEmail returns ErrNotFound when no subscription has that email.
	FetchByEmail(ctx context.Context, email string) (*domain.Subscription, error)

	// FetchSubscriberIDByToken returns ErrNotFound for unknown tokens.
	FetchSubscriberIDByToken(ctx context.Context, token string) (uuid.UUID, error)

	// InTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back on error or panic.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// Tx is a transaction handle. Fetches lock the rows they return until the
// transaction ends.
type Tx interface {
	FetchByEmail(ctx context.Context, email string) (*domain.Subscription, error)
	FetchByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)

	// Insert adds a subscription unless one with the same email exists.
	// inserted is false when the insert was a no-op; callers re-fetch by
	// email in that case.
	Insert(ctx context.Context, sub domain.NewSubscriber, status domain.SubscriptionStatus) (id uuid.UUID, inserted bool, err error)

	// UpdateStatus overwrites the status unconditionally.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubscriptionStatus) error

	// StoreToken adds a token for the subscriber. Existing tokens are kept.
	StoreToken(ctx context.Context, subscriberID uuid.UUID, token string) error

	FetchSubscriberIDByToken(ctx context.Context, token string) (uuid.UUID, error)

	// DeleteToken removes one token. Deleting a missing token is not an
	// error. A failed delete leaves the transaction usable.
	DeleteToken(ctx context.Context, token string) error

	// DeleteTokensForSubscriber removes every token issued to the subscriber.
	DeleteTokensForSubscriber(ctx context.Context, subscriberID uuid.UUID) error
}

// Publisher emits SubscriptionCreated events to the delivery workers.
type Publisher interface {
	Publish(ctx context.Context, event domain.SubscriptionCreated) error
}
