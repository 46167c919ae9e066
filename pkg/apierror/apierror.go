// Package apierror defines the single error shape every failed backend call
// is normalized into before it reaches a caller.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError carries a human-readable message plus whatever structured detail
// the backend returned. Status is the HTTP status code, or 0 for a transport
// failure that produced no response at all.
type APIError struct {
	Message        string         `json:"message"`
	Status         int            `json:"status,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Errors         map[string]any `json:"errors,omitempty"`
	NonFieldErrors []string       `json:"non_field_errors,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}

	return e.Message
}

func New(message string, status int) *APIError {
	return &APIError{Message: message, Status: status}
}

// Network builds the error used when the request never produced a response.
func Network(cause error) *APIError {
	return &APIError{Message: fmt.Sprintf("network error: %v", cause), Status: 0}
}

// From extracts the APIError wrapped in err, or nil if err carries none.
func From(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	return nil
}

// IsAuth reports whether err is a 401 from the backend.
func IsAuth(err error) bool {
	apiErr := From(err)
	return apiErr != nil && apiErr.Status == http.StatusUnauthorized
}

// IsNetwork reports whether err is a transport-level failure (no response).
func IsNetwork(err error) bool {
	apiErr := From(err)
	return apiErr != nil && apiErr.Status == 0
}

// IsValidation reports whether err carries field-level or non-field errors.
func IsValidation(err error) bool {
	apiErr := From(err)
	if apiErr == nil {
		return false
	}

	return len(apiErr.Errors) > 0 || len(apiErr.NonFieldErrors) > 0 || len(apiErr.Details) > 0
}

// IsServer reports whether err is any backend failure other than auth,
// validation, or transport.
func IsServer(err error) bool {
	apiErr := From(err)
	if apiErr == nil {
		return false
	}

	return apiErr.Status != 0 && apiErr.Status != http.StatusUnauthorized && !IsValidation(err)
}
