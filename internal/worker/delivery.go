package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/subscriptions/internal/domain"
	"github.com/ignite/subscriptions/internal/events"
	"github.com/ignite/subscriptions/internal/mailer"
	"github.com/ignite/subscriptions/internal/metrics"
	"github.com/ignite/subscriptions/internal/pkg/logger"
	"github.com/ignite/subscriptions/internal/service/subscription"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// DELIVERY WORKER: sends the confirmation email for each SubscriptionCreated
// =============================================================================
// Events are handled one at a time. A failed send is not retried: the
// subscription is marked Failed and its token deleted, and the entry is
// acknowledged. Malformed events are logged and acknowledged. Only a failure
// to record the compensation leaves the entry pending for redelivery. The
// reclaimed entry is handled from the start, so the email is sent again:
// a compensation failure turns into one more delivery attempt.

// Consumer delivers stream entries to a handler until ctx is cancelled.
type Consumer interface {
	Run(ctx context.Context, h events.Handler) error
}

// Compensator records a failed confirmation email.
type Compensator interface {
	MarkDeliveryFailed(ctx context.Context, subscriptionID uuid.UUID, token string) error
}

// DeliveryWorker consumes SubscriptionCreated events and sends the
// confirmation email.
type DeliveryWorker struct {
	consumer    Consumer
	mailer      mailer.Mailer
	composer    *mailer.Composer
	compensator Compensator
	log         *logger.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

// NewDeliveryWorker creates a delivery worker. log and m may be nil.
func NewDeliveryWorker(consumer Consumer, m mailer.Mailer, composer *mailer.Composer, compensator Compensator, log *logger.Logger, mt *metrics.Metrics) *DeliveryWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &DeliveryWorker{
		consumer:    consumer,
		mailer:      m,
		composer:    composer,
		compensator: compensator,
		log:         log,
		metrics:     mt,
		tracer:      otel.Tracer("github.com/ignite/subscriptions/internal/worker"),
	}
}

// Start consumes events until ctx is cancelled. It returns the consumer's
// error so a Supervisor can restart it.
func (w *DeliveryWorker) Start(ctx context.Context) error {
	w.log.Info("delivery worker starting")
	return w.consumer.Run(ctx, w.Handle)
}

// Handle processes one event. In-flight work is not interrupted by ctx
// cancellation; the mailer timeout bounds it instead.
func (w *DeliveryWorker) Handle(ctx context.Context, msg events.Message) error {
	ctx, span := w.tracer.Start(context.WithoutCancel(ctx), "worker.Deliver")
	defer span.End()

	event, err := decodeEvent(msg.Payload)
	if err != nil {
		w.metrics.IncrementDelivery("malformed")
		w.log.Error("dropping malformed subscription created event",
			"id", msg.ID,
			"payload_bytes", len(msg.Payload),
			"error", err.Error())
		return nil
	}
	span.SetAttributes(
		attribute.String("subscription.id", event.SubscriptionID.String()),
		attribute.Bool("event.redelivered", msg.Redelivered),
	)

	sendErr := w.send(ctx, event)
	if sendErr == nil {
		w.metrics.IncrementDelivery("sent")
		w.log.Info("confirmation email sent",
			"subscription_id", event.SubscriptionID.String(),
			"subscriber_email", event.Email)
		return nil
	}

	w.metrics.IncrementDelivery("failed")
	span.RecordError(sendErr)
	span.SetStatus(codes.Error, "send")
	w.log.Warn("confirmation email failed",
		"subscription_id", event.SubscriptionID.String(),
		"subscriber_email", event.Email,
		"error", sendErr.Error())

	if err := w.compensator.MarkDeliveryFailed(ctx, event.SubscriptionID, event.SubscriptionToken); err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			w.log.Warn("subscription gone, nothing to compensate",
				"subscription_id", event.SubscriptionID.String())
			return nil
		}
		return fmt.Errorf("mark delivery failed: %w", err)
	}
	return nil
}

func (w *DeliveryWorker) send(ctx context.Context, event domain.SubscriptionCreated) error {
	msg, err := w.composer.Confirmation(event)
	if err != nil {
		return fmt.Errorf("%w: %w", mailer.ErrDelivery, err)
	}
	start := time.Now()
	err = w.mailer.Send(ctx, msg)
	w.metrics.ObserveSend(start)
	return err
}

func decodeEvent(payload []byte) (domain.SubscriptionCreated, error) {
	var event domain.SubscriptionCreated
	if len(payload) == 0 {
		return event, errors.New("empty payload")
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, err
	}
	switch {
	case event.SubscriptionID == uuid.Nil:
		return event, errors.New("missing subscription_id")
	case event.SubscriptionToken == "":
		return event, errors.New("missing subscription_token")
	case event.Email == "":
		return event, errors.New("missing email")
	}
	return event, nil
}
