package mailer

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ignite/subscriptions/internal/domain"
	"github.com/osteele/liquid"
)

// ConfirmationPath is the route that consumes confirmation tokens.
const ConfirmationPath = "/subscriptions/confirm"

// ConfirmationLink returns the link embedded in the confirmation email.
func ConfirmationLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + ConfirmationPath + "?subscription_token=" + url.QueryEscape(token)
}

// Composer renders confirmation emails from liquid templates. Templates see
// the bindings name and confirmation_link.
type Composer struct {
	baseURL string
	subject *liquid.Template
	text    *liquid.Template
}

// NewComposer parses the subject and body templates.
func NewComposer(baseURL, subjectTemplate, textTemplate string) (*Composer, error) {
	engine := liquid.NewEngine()
	subject, err := engine.ParseString(subjectTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	text, err := engine.ParseString(textTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	return &Composer{baseURL: baseURL, subject: subject, text: text}, nil
}

// Confirmation builds the confirmation email for event.
func (c *Composer) Confirmation(event domain.SubscriptionCreated) (Message, error) {
	bindings := map[string]interface{}{
		"name":              event.Name,
		"confirmation_link": ConfirmationLink(c.baseURL, event.SubscriptionToken),
	}
	subject, err := c.subject.RenderString(bindings)
	if err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	text, err := c.text.RenderString(bindings)
	if err != nil {
		return Message{}, fmt.Errorf("render body: %w", err)
	}
	return Message{To: event.Email, Subject: strings.TrimSpace(subject), TextBody: text}, nil
}
