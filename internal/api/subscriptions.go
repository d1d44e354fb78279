package api

import (
	"errors"
	"net/http"

	"github.com/ignite/subscriptions/internal/domain"
	"github.com/ignite/subscriptions/internal/pkg/httputil"
	"github.com/ignite/subscriptions/internal/pkg/logger"
	"github.com/ignite/subscriptions/internal/service/subscription"
)

const maxFormBytes = 64 << 10

type subscriptionHandlers struct {
	svc Subscriptions
	rs  *httputil.Responder
	log *logger.Logger
}

// register handles the subscription form.
//
//	POST /subscriptions  (email, name; form-encoded)
//	200 registered or confirmation re-sent
//	400 invalid email or name
//	409 already confirmed
//	500 storage or publish failure
func (h *subscriptionHandlers) register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.rs.BadRequest(w, "invalid_form", "request body must be a form")
		return
	}

	sub, err := domain.ParseNewSubscriber(r.PostForm.Get("email"), r.PostForm.Get("name"))
	switch {
	case errors.Is(err, domain.ErrInvalidEmail):
		h.rs.BadRequest(w, "invalid_email", "email is not a valid address")
		return
	case errors.Is(err, domain.ErrInvalidName):
		h.rs.BadRequest(w, "invalid_name", "name is empty, too long or contains forbidden characters")
		return
	case err != nil:
		h.rs.BadRequest(w, "invalid_subscriber", err.Error())
		return
	}

	outcome, err := h.svc.Register(r.Context(), sub)
	if err != nil {
		h.rs.InternalError(w, err, "handler", "register", "subscriber_email", sub.Email.String())
		return
	}
	if outcome == subscription.RegisterAlreadySubscribed {
		h.rs.Conflict(w, "already_subscribed", "this email is already subscribed")
		return
	}
	h.rs.Empty(w, http.StatusOK)
}

// confirm consumes a confirmation token.
//
//	GET /subscriptions/confirm?subscription_token=...
//	200 confirmed
//	400 missing or malformed token
//	401 unknown or already used token
//	500 storage failure
func (h *subscriptionHandlers) confirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("subscription_token")
	if token == "" {
		h.rs.BadRequest(w, "missing_token", "subscription_token is required")
		return
	}

	outcome, err := h.svc.Confirm(r.Context(), token)
	if errors.Is(err, domain.ErrValidation) {
		h.rs.BadRequest(w, "invalid_token", "subscription_token is malformed")
		return
	}
	if err != nil {
		h.rs.InternalError(w, err, "handler", "confirm")
		return
	}
	if outcome == subscription.ConfirmTokenNotFound {
		h.rs.Unauthorized(w, "token_not_found", "subscription token is unknown or already used")
		return
	}
	h.rs.Empty(w, http.StatusOK)
}
