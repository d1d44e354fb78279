// Package httputil writes the API's JSON responses.
//
// Handlers send bodies through a Responder so every error uses the
// ErrorResponse envelope. Server-side failures go through InternalError,
// which logs the cause and returns a generic message to the client.
package httputil
