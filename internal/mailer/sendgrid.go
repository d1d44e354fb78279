package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SendGridClient sends email through the SendGrid v3 Mail Send API.
type SendGridClient struct {
	apiKey  string
	baseURL string
	sender  string
	timeout time.Duration
	client  *http.Client
}

// NewSendGridClient creates a client. timeout bounds each Send.
func NewSendGridClient(baseURL, apiKey, sender string, timeout time.Duration) *SendGridClient {
	return &SendGridClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		sender:  sender,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

// Send posts msg to {base_url}/mail/send. Any non-2xx status is a failure.
func (s *SendGridClient) Send(ctx context.Context, msg Message) error {
	payload := sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: msg.To}}}},
		From:             sendGridAddress{Email: s.sender},
		Subject:          msg.Subject,
		Content:          []sendGridContent{{Type: "text/plain", Value: msg.TextBody}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrDelivery, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/mail/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %w", ErrDelivery, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: sendgrid status %d: %s", ErrDelivery, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
