package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/ignite/subscriptions/internal/domain"
	"github.com/ignite/subscriptions/internal/service/subscription"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var subscriptionColumns = []string{"id", "email", "name", "status", "subscribed_at"}

func newMockStore(t *testing.T) (*SubscriptionStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSubscriptionStore(db), mock
}

func TestFetchByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, email, name, status, subscribed_at\\s+FROM subscriptions WHERE email").
		WithArgs("ursula@example.com").
		WillReturnRows(sqlmock.NewRows(subscriptionColumns).
			AddRow(id.String(), "ursula@example.com", "Ursula", "pending", at))

	sub, err := store.FetchByEmail(context.Background(), "ursula@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, sub.ID)
	assert.Equal(t, domain.SubscriptionPending, sub.Status)
	assert.Equal(t, at, sub.SubscribedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchByEmail_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, email, name, status, subscribed_at").
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FetchByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestFetchByEmail_UnknownStatus(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, email, name, status, subscribed_at").
		WillReturnRows(sqlmock.NewRows(subscriptionColumns).
			AddRow(uuid.NewString(), "a@example.com", "A", "archived", time.Now()))

	_, err := store.FetchByEmail(context.Background(), "a@example.com")
	assert.ErrorContains(t, err, "unknown status")
}

func TestFetchSubscriberIDByToken(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT subscriber_id FROM subscription_tokens WHERE subscription_token").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"subscriber_id"}).AddRow(id.String()))
	mock.ExpectQuery("SELECT subscriber_id FROM subscription_tokens").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	got, err := store.FetchSubscriberIDByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = store.FetchSubscriberIDByToken(context.Background(), "missing")
	assert.ErrorIs(t, err, subscription.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RegisterFlowCommits(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	id := uuid.New()
	sub, err := domain.ParseNewSubscriber("ursula@example.com", "Ursula")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, email, name, status, subscribed_at\\s+FROM subscriptions WHERE email = .+ FOR UPDATE").
		WithArgs("ursula@example.com").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO subscriptions .+ ON CONFLICT \\(email\\) DO NOTHING\\s+RETURNING id").
		WithArgs(sqlmock.AnyArg(), "ursula@example.com", "Ursula", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))
	mock.ExpectExec("INSERT INTO subscription_tokens").
		WithArgs("tok", id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.InTx(ctx, func(tx subscription.Tx) error {
		_, err := tx.FetchByEmail(ctx, "ursula@example.com")
		require.ErrorIs(t, err, subscription.ErrNotFound)
		got, inserted, err := tx.Insert(ctx, sub, domain.SubscriptionPending)
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.Equal(t, id, got)
		return tx.StoreToken(ctx, got, "tok")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_InsertConflictReportsNotInserted(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	sub, err := domain.ParseNewSubscriber("ursula@example.com", "Ursula")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO subscriptions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	err = store.InTx(ctx, func(tx subscription.Tx) error {
		id, inserted, err := tx.Insert(ctx, sub, domain.SubscriptionPending)
		assert.False(t, inserted)
		assert.Equal(t, uuid.Nil, id)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE subscriptions SET status").
		WithArgs("confirmed", id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO subscription_tokens").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.InTx(ctx, func(tx subscription.Tx) error {
		require.NoError(t, tx.UpdateStatus(ctx, id, domain.SubscriptionConfirmed))
		return tx.StoreToken(ctx, id, "tok")
	})
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackOnPanic(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = store.InTx(context.Background(), func(tx subscription.Tx) error {
			panic("handler bug")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_CommitFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err := store.InTx(context.Background(), func(tx subscription.Tx) error { return nil })
	assert.ErrorContains(t, err, "commit")
}

func TestInTx_CancelledContext(t *testing.T) {
	store, mock := newMockStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.InTx(ctx, func(tx subscription.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, mock.ExpectationsWereMet(), "no transaction was opened")
}

func TestUpdateStatus_NoRow(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE subscriptions SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.InTx(ctx, func(tx subscription.Tx) error {
		return tx.UpdateStatus(ctx, uuid.New(), domain.SubscriptionFailed)
	})
	assert.ErrorIs(t, err, subscription.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreToken_Duplicate(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO subscription_tokens").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})
	mock.ExpectRollback()

	err := store.InTx(ctx, func(tx subscription.Tx) error {
		return tx.StoreToken(ctx, uuid.New(), "tok")
	})
	assert.ErrorIs(t, err, subscription.ErrTokenExists)
}

func TestDeleteToken_UsesSavepoint(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE subscriptions SET status").
		WithArgs("failed", id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SAVEPOINT delete_token").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM subscription_tokens WHERE subscription_token").
		WithArgs("tok").
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT delete_token").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.InTx(ctx, func(tx subscription.Tx) error {
		require.NoError(t, tx.UpdateStatus(ctx, id, domain.SubscriptionFailed))
		assert.ErrorContains(t, tx.DeleteToken(ctx, "tok"), "lock timeout")
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteToken_Released(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT delete_token").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM subscription_tokens").
		WithArgs("tok").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("RELEASE SAVEPOINT delete_token").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM subscription_tokens WHERE subscriber_id").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.InTx(ctx, func(tx subscription.Tx) error {
		require.NoError(t, tx.DeleteToken(ctx, "tok"))
		return tx.DeleteTokensForSubscriber(ctx, uuid.New())
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchByID_Locks(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM subscriptions WHERE id = .+ FOR UPDATE").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns).
			AddRow(id.String(), "a@example.com", "A", "failed", time.Now()))
	mock.ExpectQuery("SELECT subscriber_id FROM subscription_tokens WHERE subscription_token = .+ FOR UPDATE").
		WithArgs("tok").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	err := store.InTx(ctx, func(tx subscription.Tx) error {
		sub, err := tx.FetchByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionFailed, sub.Status)
		_, err = tx.FetchSubscriberIDByToken(ctx, "tok")
		assert.ErrorIs(t, err, subscription.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
