package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/ignite/subscriptions/internal/pkg/logger"
)

// ErrorResponse is the standard error envelope for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Responder writes JSON responses and logs encode and internal failures.
type Responder struct {
	log *logger.Logger
}

// NewResponder creates a Responder. A nil logger discards output.
func NewResponder(log *logger.Logger) *Responder {
	if log == nil {
		log = logger.Nop()
	}
	return &Responder{log: log}
}

// JSON writes a JSON response with the given status code.
func (rs *Responder) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		rs.log.Error("json encode failed", "error", err.Error())
	}
}

// OK writes a 200 response with the given data.
func (rs *Responder) OK(w http.ResponseWriter, data any) {
	rs.JSON(w, http.StatusOK, data)
}

// Empty writes a status with no body.
func (rs *Responder) Empty(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}

// Error writes a JSON error response. Use for client errors (4xx).
func (rs *Responder) Error(w http.ResponseWriter, status int, code, message string) {
	rs.JSON(w, status, ErrorResponse{Error: message, Code: code})
}

// BadRequest writes a 400 error.
func (rs *Responder) BadRequest(w http.ResponseWriter, code, message string) {
	rs.Error(w, http.StatusBadRequest, code, message)
}

// Unauthorized writes a 401 error.
func (rs *Responder) Unauthorized(w http.ResponseWriter, code, message string) {
	rs.Error(w, http.StatusUnauthorized, code, message)
}

// Conflict writes a 409 error.
func (rs *Responder) Conflict(w http.ResponseWriter, code, message string) {
	rs.Error(w, http.StatusConflict, code, message)
}

// InternalError writes a 500 error. The real error is logged with the given
// fields; the client only sees a generic message.
func (rs *Responder) InternalError(w http.ResponseWriter, err error, fields ...interface{}) {
	rs.log.Error("internal error", append(fields, "error", err.Error())...)
	rs.JSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
