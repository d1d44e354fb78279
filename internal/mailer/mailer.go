// Package mailer sends the confirmation email. A send either succeeds or
// fails; there is no retry.
package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/subscriptions/internal/config"
)

// ErrDelivery wraps every send failure, including timeouts and non-2xx
// provider responses.
var ErrDelivery = errors.New("email delivery failed")

// Message is one plain-text email.
type Message struct {
	To       string
	Subject  string
	TextBody string
}

// Mailer sends one message to one recipient.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New builds the Mailer selected by cfg.Provider.
func New(ctx context.Context, cfg config.EmailConfig) (Mailer, error) {
	switch cfg.Provider {
	case "sendgrid":
		return NewSendGridClient(cfg.BaseURL, cfg.APIKey, cfg.SenderEmail, cfg.Timeout()), nil
	case "ses":
		return NewSESClient(ctx, cfg.SES, cfg.SenderEmail, cfg.Timeout())
	}
	return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
}
