package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/subscriptions/internal/domain"
	"github.com/ignite/subscriptions/internal/service/subscription"
	"github.com/lib/pq"
)

const defaultTxTimeout = 5 * time.Second

const uniqueViolation = "23505"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SubscriptionStore implements subscription.Store against PostgreSQL.
type SubscriptionStore struct {
	db        *sql.DB
	txTimeout time.Duration
}

var _ subscription.Store = (*SubscriptionStore)(nil)

// NewSubscriptionStore creates a Postgres-backed subscription store.
func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db, txTimeout: defaultTxTimeout}
}

func (s *SubscriptionStore) FetchByEmail(ctx context.Context, email string) (*domain.Subscription, error) {
	return fetchSubscription(ctx, s.db, `
		SELECT id, email, name, status, subscribed_at
		FROM subscriptions WHERE email = $1`, email)
}

func (s *SubscriptionStore) FetchSubscriberIDByToken(ctx context.Context, token string) (uuid.UUID, error) {
	return fetchSubscriberID(ctx, s.db,
		`SELECT subscriber_id FROM subscription_tokens WHERE subscription_token = $1`, token)
}

func (s *SubscriptionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a READ COMMITTED transaction. Row locks taken by the
// Tx fetches serialize concurrent operations on the same subscription. A
// default timeout applies when ctx has no deadline.
func (s *SubscriptionStore) InTx(ctx context.Context, fn func(tx subscription.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct{ tx *sql.Tx }

func (t *pgTx) FetchByEmail(ctx context.Context, email string) (*domain.Subscription, error) {
	return fetchSubscription(ctx, t.tx, `
		SELECT id, email, name, status, subscribed_at
		FROM subscriptions WHERE email = $1 FOR UPDATE`, email)
}

func (t *pgTx) FetchByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return fetchSubscription(ctx, t.tx, `
		SELECT id, email, name, status, subscribed_at
		FROM subscriptions WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) Insert(ctx context.Context, sub domain.NewSubscriber, status domain.SubscriptionStatus) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO subscriptions (id, email, name, status, subscribed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (email) DO NOTHING
		RETURNING id`,
		uuid.New(), sub.Email.String(), sub.Name.String(), string(status),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("insert subscription: %w", err)
	}
	return id, true, nil
}

func (t *pgTx) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubscriptionStatus) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE subscriptions SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

func (t *pgTx) StoreToken(ctx context.Context, subscriberID uuid.UUID, token string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO subscription_tokens (subscription_token, subscriber_id) VALUES ($1, $2)`,
		token, subscriberID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return subscription.ErrTokenExists
	}
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

func (t *pgTx) FetchSubscriberIDByToken(ctx context.Context, token string) (uuid.UUID, error) {
	return fetchSubscriberID(ctx, t.tx,
		`SELECT subscriber_id FROM subscription_tokens WHERE subscription_token = $1 FOR UPDATE`, token)
}

// DeleteToken runs under a savepoint so a failed delete does not abort the
// enclosing transaction.
func (t *pgTx) DeleteToken(ctx context.Context, token string) error {
	if _, err := t.tx.ExecContext(ctx, `SAVEPOINT delete_token`); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM subscription_tokens WHERE subscription_token = $1`, token); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT delete_token`); rbErr != nil {
			return fmt.Errorf("delete token: %w (rollback to savepoint: %v)", err, rbErr)
		}
		return fmt.Errorf("delete token: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `RELEASE SAVEPOINT delete_token`); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteTokensForSubscriber(ctx context.Context, subscriberID uuid.UUID) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM subscription_tokens WHERE subscriber_id = $1`, subscriberID); err != nil {
		return fmt.Errorf("delete tokens for subscriber: %w", err)
	}
	return nil
}

func fetchSubscription(ctx context.Context, q querier, query string, arg any) (*domain.Subscription, error) {
	var (
		sub    domain.Subscription
		status string
	)
	err := q.QueryRowContext(ctx, query, arg).Scan(&sub.ID, &sub.Email, &sub.Name, &status, &sub.SubscribedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, subscription.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}
	sub.Status = domain.SubscriptionStatus(status)
	if !sub.Status.Valid() {
		return nil, fmt.Errorf("fetch subscription: unknown status %q", status)
	}
	return &sub, nil
}

func fetchSubscriberID(ctx context.Context, q querier, query, token string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRowContext(ctx, query, token).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, subscription.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("fetch subscriber id by token: %w", err)
	}
	return id, nil
}
