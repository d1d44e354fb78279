// Package memory provides an in-process subscription store. Transactions are
// serialized by a store-wide lock and staged on a copy of the data, so a
// rolled back transaction leaves no trace.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/subscriptions/internal/domain"
	"github.com/ignite/subscriptions/internal/service/subscription"
)

// Operations that can be made to fail with SetFault.
const (
	OpFetchByEmail              = "fetch_by_email"
	OpFetchByID                 = "fetch_by_id"
	OpInsert                    = "insert"
	OpUpdateStatus              = "update_status"
	OpStoreToken                = "store_token"
	OpFetchSubscriberIDByToken  = "fetch_subscriber_id_by_token"
	OpDeleteToken               = "delete_token"
	OpDeleteTokensForSubscriber = "delete_tokens_for_subscriber"
	OpCommit                    = "commit"
	OpPing                      = "ping"
)

type state struct {
	subs    map[uuid.UUID]domain.Subscription
	byEmail map[string]uuid.UUID
	tokens  map[string]uuid.UUID
}

func newState() state {
	return state{
		subs:    make(map[uuid.UUID]domain.Subscription),
		byEmail: make(map[string]uuid.UUID),
		tokens:  make(map[string]uuid.UUID),
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.subs {
		c.subs[k] = v
	}
	for k, v := range s.byEmail {
		c.byEmail[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

// Store implements subscription.Store in memory.
type Store struct {
	mu     sync.Mutex
	data   state
	faults map[string]error
	now    func() time.Time
}

var _ subscription.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		data:   newState(),
		faults: make(map[string]error),
		now:    time.Now,
	}
}

// SetFault makes op fail with err until cleared with a nil err.
func (s *Store) SetFault(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	if err, ok := s.faults[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) FetchByEmail(ctx context.Context, email string) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchByEmail(s.data, email)
}

func (s *Store) fetchByEmail(st state, email string) (*domain.Subscription, error) {
	if err := s.fault(OpFetchByEmail); err != nil {
		return nil, err
	}
	id, ok := st.byEmail[email]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	sub := st.subs[id]
	return &sub, nil
}

func (s *Store) FetchSubscriberIDByToken(ctx context.Context, token string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchSubscriberIDByToken(s.data, token)
}

func (s *Store) fetchSubscriberIDByToken(st state, token string) (uuid.UUID, error) {
	if err := s.fault(OpFetchSubscriberIDByToken); err != nil {
		return uuid.Nil, err
	}
	id, ok := st.tokens[token]
	if !ok {
		return uuid.Nil, subscription.ErrNotFound
	}
	return id, nil
}

// InTx runs fn against a staged copy of the data and publishes the copy when
// fn returns nil. The store lock is held for the whole call.
func (s *Store) InTx(ctx context.Context, fn func(tx subscription.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, st: s.data.clone()}
	defer func() {
		if p := recover(); p != nil {
			tx.done = true
			panic(p)
		}
	}()

	err = fn(tx)
	tx.done = true
	if err != nil {
		return err
	}
	if err := s.fault(OpCommit); err != nil {
		return err
	}
	s.data = tx.st
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault(OpPing)
}

// Subscriptions returns every stored subscription ordered by subscribed_at.
func (s *Store) Subscriptions() []domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Subscription, 0, len(s.data.subs))
	for _, sub := range s.data.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscribedAt.Before(out[j].SubscribedAt) })
	return out
}

// Tokens returns the active tokens for a subscriber, sorted.
func (s *Store) Tokens(subscriberID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for token, id := range s.data.tokens {
		if id == subscriberID {
			out = append(out, token)
		}
	}
	sort.Strings(out)
	return out
}

type memTx struct {
	store *Store
	st    state
	done  bool
}

func (t *memTx) check() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	return nil
}

func (t *memTx) FetchByEmail(ctx context.Context, email string) (*domain.Subscription, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return t.store.fetchByEmail(t.st, email)
}

func (t *memTx) FetchByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if err := t.store.fault(OpFetchByID); err != nil {
		return nil, err
	}
	sub, ok := t.st.subs[id]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	return &sub, nil
}

func (t *memTx) Insert(ctx context.Context, sub domain.NewSubscriber, status domain.SubscriptionStatus) (uuid.UUID, bool, error) {
	if err := t.check(); err != nil {
		return uuid.Nil, false, err
	}
	if err := t.store.fault(OpInsert); err != nil {
		return uuid.Nil, false, err
	}
	email := sub.Email.String()
	if _, exists := t.st.byEmail[email]; exists {
		return uuid.Nil, false, nil
	}
	id := uuid.New()
	t.st.subs[id] = domain.Subscription{
		ID:           id,
		Email:        email,
		Name:         sub.Name.String(),
		Status:       status,
		SubscribedAt: t.store.now().UTC(),
	}
	t.st.byEmail[email] = id
	return id, true, nil
}

func (t *memTx) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubscriptionStatus) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := t.store.fault(OpUpdateStatus); err != nil {
		return err
	}
	sub, ok := t.st.subs[id]
	if !ok {
		return subscription.ErrNotFound
	}
	sub.Status = status
	t.st.subs[id] = sub
	return nil
}

func (t *memTx) StoreToken(ctx context.Context, subscriberID uuid.UUID, token string) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := t.store.fault(OpStoreToken); err != nil {
		return err
	}
	if _, ok := t.st.subs[subscriberID]; !ok {
		return fmt.Errorf("store token: unknown subscriber %s", subscriberID)
	}
	if _, exists := t.st.tokens[token]; exists {
		return subscription.ErrTokenExists
	}
	t.st.tokens[token] = subscriberID
	return nil
}

func (t *memTx) FetchSubscriberIDByToken(ctx context.Context, token string) (uuid.UUID, error) {
	if err := t.check(); err != nil {
		return uuid.Nil, err
	}
	return t.store.fetchSubscriberIDByToken(t.st, token)
}

func (t *memTx) DeleteToken(ctx context.Context, token string) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := t.store.fault(OpDeleteToken); err != nil {
		return err
	}
	delete(t.st.tokens, token)
	return nil
}

func (t *memTx) DeleteTokensForSubscriber(ctx context.Context, subscriberID uuid.UUID) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := t.store.fault(OpDeleteTokensForSubscriber); err != nil {
		return err
	}
	for token, id := range t.st.tokens {
		if id == subscriberID {
			delete(t.st.tokens, token)
		}
	}
	return nil
}
