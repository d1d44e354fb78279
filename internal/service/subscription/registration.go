package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/subscriptions/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// tokenAttempts bounds how many fresh tokens Register tries.
const tokenAttempts = 2

// Register records a registration request and, unless the email is already
// confirmed, issues a confirmation token and publishes SubscriptionCreated.
//
// The token is committed before the event is published. Publication uses a
// context detached from ctx so a caller that goes away after commit does not
// suppress the event.
func (s *Service) Register(ctx context.Context, sub domain.NewSubscriber) (RegisterOutcome, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "subscription.Register")
	defer span.End()

	email := sub.Email.String()
	existing, err := s.store.FetchByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, s.storageError(span, "fetch subscription by email", err)
	}
	if err == nil && existing.Status == domain.SubscriptionConfirmed {
		s.metrics.ObserveRegistration(RegisterAlreadySubscribed.String(), start)
		span.SetAttributes(attribute.String("subscription.outcome", RegisterAlreadySubscribed.String()))
		return RegisterAlreadySubscribed, nil
	}

	var (
		outcome RegisterOutcome
		event   domain.SubscriptionCreated
	)
	// A token collision rolls the whole transaction back, so it is rerun
	// once with a fresh token.
	for attempt := 1; ; attempt++ {
		err = s.registerTx(ctx, sub, &outcome, &event)
		if !errors.Is(err, ErrTokenExists) || attempt == tokenAttempts {
			break
		}
		s.log.Warn("confirmation token collision, retrying with a new token",
			"subscriber_email", email)
	}
	if err != nil {
		return 0, s.storageError(span, "register", err)
	}

	span.SetAttributes(attribute.String("subscription.outcome", outcome.String()))
	if outcome == RegisterAlreadySubscribed {
		s.metrics.ObserveRegistration(outcome.String(), start)
		return outcome, nil
	}
	span.SetAttributes(attribute.String("subscription.id", event.SubscriptionID.String()))

	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.metrics.IncrementPublishFailure()
		s.log.Error("failed to publish subscription created",
			"subscription_id", event.SubscriptionID.String(),
			"subscriber_email", email,
			"error", err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish")
		return 0, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	s.metrics.ObserveRegistration(outcome.String(), start)
	s.log.Info("subscription registered",
		"subscription_id", event.SubscriptionID.String(),
		"subscriber_email", email,
		"outcome", outcome.String())
	return outcome, nil
}

// registerTx runs one registration attempt in a single transaction.
func (s *Service) registerTx(ctx context.Context, sub domain.NewSubscriber, outcome *RegisterOutcome, event *domain.SubscriptionCreated) error {
	return s.store.InTx(ctx, func(tx Tx) error {
		o, id, err := s.resolve(ctx, tx, sub)
		if err != nil {
			return err
		}
		*outcome = o
		if o == RegisterAlreadySubscribed {
			return nil
		}

		token := s.newToken()
		if err := tx.StoreToken(ctx, id, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
		*event = domain.SubscriptionCreated{
			Email:             sub.Email.String(),
			Name:              sub.Name.String(),
			SubscriptionID:    id,
			SubscriptionToken: token,
		}
		return nil
	})
}

// resolve locks or creates the subscription row for sub and applies the
// registration transition. It returns the outcome and the subscription id.
func (s *Service) resolve(ctx context.Context, tx Tx, sub domain.NewSubscriber) (RegisterOutcome, uuid.UUID, error) {
	email := sub.Email.String()

	current, err := tx.FetchByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		id, inserted, err := tx.Insert(ctx, sub, domain.SubscriptionPending)
		if err != nil {
			return 0, uuid.Nil, fmt.Errorf("insert subscription: %w", err)
		}
		if inserted {
			return RegisterSuccess, id, nil
		}
		// A concurrent registration created the row first.
		current, err = tx.FetchByEmail(ctx, email)
		if err != nil {
			return 0, uuid.Nil, fmt.Errorf("fetch subscription after conflict: %w", err)
		}
	} else if err != nil {
		return 0, uuid.Nil, fmt.Errorf("fetch subscription for update: %w", err)
	}

	switch current.Status {
	case domain.SubscriptionConfirmed:
		return RegisterAlreadySubscribed, current.ID, nil
	case domain.SubscriptionFailed:
		if err := tx.UpdateStatus(ctx, current.ID, domain.SubscriptionPending); err != nil {
			return 0, uuid.Nil, fmt.Errorf("reactivate subscription: %w", err)
		}
		if err := tx.DeleteTokensForSubscriber(ctx, current.ID); err != nil {
			return 0, uuid.Nil, fmt.Errorf("delete stale tokens: %w", err)
		}
	}
	return RegisterResendConfirmation, current.ID, nil
}
