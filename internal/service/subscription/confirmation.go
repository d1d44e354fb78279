package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/subscriptions/internal/domain"
	"go.opentelemetry.io/otel/attribute"
)

// Confirm consumes a confirmation token and marks its subscription
// Confirmed. Malformed tokens return domain.ErrInvalidToken without touching
// storage. A token can be consumed once.
func (s *Service) Confirm(ctx context.Context, rawToken string) (ConfirmOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "subscription.Confirm")
	defer span.End()

	token, err := domain.ParseSubscriptionToken(rawToken)
	if err != nil {
		return 0, err
	}

	if _, err := s.store.FetchSubscriberIDByToken(ctx, token); errors.Is(err, ErrNotFound) {
		s.metrics.IncrementConfirmation(ConfirmTokenNotFound.String())
		return ConfirmTokenNotFound, nil
	} else if err != nil {
		return 0, s.storageError(span, "fetch subscriber id by token", err)
	}

	outcome := ConfirmSuccess
	var subscriberID uuid.UUID
	err = s.store.InTx(ctx, func(tx Tx) error {
		// A concurrent Confirm may have consumed the token since the lookup.
		id, err := tx.FetchSubscriberIDByToken(ctx, token)
		if errors.Is(err, ErrNotFound) {
			outcome = ConfirmTokenNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("fetch subscriber id by token for update: %w", err)
		}
		subscriberID = id
		if err := tx.UpdateStatus(ctx, id, domain.SubscriptionConfirmed); err != nil {
			return fmt.Errorf("confirm subscription: %w", err)
		}
		if err := tx.DeleteToken(ctx, token); err != nil {
			return fmt.Errorf("delete token: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, s.storageError(span, "confirm", err)
	}

	s.metrics.IncrementConfirmation(outcome.String())
	span.SetAttributes(attribute.String("subscription.outcome", outcome.String()))
	if outcome == ConfirmSuccess {
		s.log.Info("subscription confirmed", "subscription_id", subscriberID.String())
	}
	return outcome, nil
}
