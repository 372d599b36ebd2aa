// Package handler contains HTTP request handlers for the reservation API.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/seatly/seatly/internal/service"
)

// envelope is the uniform response body: exactly one of Data or Err is
// set, and Timestamp is the server-side response time.
type envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Err       *apiError `json:"error,omitempty"`
	Timestamp string    `json:"timestamp"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// exposeDetails controls whether error details reach clients. Set once
// at startup; details always land in the server log regardless.
var exposeDetails bool

// ExposeErrorDetails enables detail passthrough for non-production
// environments.
func ExposeErrorDetails(on bool) { exposeDetails = on }

// writeJSON writes a success envelope.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// writeError maps a service error onto the envelope. Unclassified
// errors are logged and surfaced as INTERNAL_ERROR.
func writeError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		log.Printf("[handler] unclassified error: %v", err)
		svcErr = service.ErrInternal
	}

	details := svcErr.Details
	if !exposeDetails && svcErr.Status >= http.StatusInternalServerError {
		// Internals stay in the log in production.
		details = ""
	}
	if svcErr.Status >= http.StatusInternalServerError {
		log.Printf("[handler] %s: %v", svcErr.Code, err)
	}

	w.Header().Set("Content-Type", "application/json")
	if svcErr.Retryable {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(svcErr.Status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:   false,
		Err:       &apiError{Code: svcErr.Code, Message: svcErr.Message, Details: details},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
