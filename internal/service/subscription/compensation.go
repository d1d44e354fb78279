package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/subscriptions/internal/domain"
	"go.opentelemetry.io/otel/attribute"
)

// MarkDeliveryFailed is applied when the confirmation email for token could
// not be sent. In one transaction it moves the subscription to Failed and
// deletes the token. A Confirmed subscription keeps its status. The token
// deletion is best-effort: a failure is logged and the status change still
// commits.
//
// It returns ErrNotFound (wrapped) when the subscription no longer exists.
func (s *Service) MarkDeliveryFailed(ctx context.Context, subscriptionID uuid.UUID, token string) error {
	ctx, span := s.tracer.Start(ctx, "subscription.MarkDeliveryFailed")
	defer span.End()
	span.SetAttributes(attribute.String("subscription.id", subscriptionID.String()))

	result := "marked_failed"
	err := s.store.InTx(ctx, func(tx Tx) error {
		sub, err := tx.FetchByID(ctx, subscriptionID)
		if err != nil {
			return fmt.Errorf("fetch subscription for update: %w", err)
		}

		switch {
		case sub.Status.CanTransitionTo(domain.SubscriptionFailed):
			if err := tx.UpdateStatus(ctx, sub.ID, domain.SubscriptionFailed); err != nil {
				return fmt.Errorf("mark subscription failed: %w", err)
			}
		case sub.Status == domain.SubscriptionConfirmed:
			result = "skipped_confirmed"
		default:
			result = "already_failed"
		}

		if err := tx.DeleteToken(ctx, token); err != nil {
			s.log.Warn("failed to delete token after delivery failure",
				"subscription_id", subscriptionID.String(),
				"error", err.Error())
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		s.metrics.IncrementCompensation("not_found")
		return err
	}
	if err != nil {
		s.metrics.IncrementCompensation("error")
		return s.storageError(span, "mark delivery failed", err)
	}

	s.metrics.IncrementCompensation(result)
	s.log.Info("delivery failure compensated",
		"subscription_id", subscriptionID.String(),
		"result", result)
	return nil
}
