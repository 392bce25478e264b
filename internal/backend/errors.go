package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a structured error returned by the backend.
type APIError struct {
	Status    int    `json:"status"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	// Body holds the raw response when it was not a JSON envelope.
	Body string `json:"-"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("backend error (status %d, code %d): %s", e.Status, e.Code, msg)
}

// UserMessage returns the backend-supplied message.
func (e *APIError) UserMessage() string { return e.Message }

// ErrorKind classifies the error for run bookkeeping.
func (e *APIError) ErrorKind() string { return "backend" }

// IsAPIError reports whether err carries a backend APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
