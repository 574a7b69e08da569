// Package core provides the shared types for the chat backend.
package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultErrorMessage is used when an upstream fault carries no message at all.
const DefaultErrorMessage = "An unexpected error occurred"

// ProviderError is the normalized form of any fault raised while calling an
// upstream LLM provider.
type ProviderError struct {
	Provider string `json:"provider,omitempty"`
	// StatusCode is the upstream HTTP status, or 0 when no response was received
	StatusCode int `json:"status_code"`
	// RawMessage is the message as reported upstream (not exposed to clients)
	RawMessage string `json:"-"`
	// Message is the user-facing message written into the error envelope
	Message string `json:"message"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	raw := e.RawMessage
	if raw == "" {
		raw = e.Message
	}
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %d: %s", e.Provider, e.HTTPStatusCode(), raw)
	}
	return fmt.Sprintf("%d: %s", e.HTTPStatusCode(), raw)
}

// Unwrap implements the error unwrapping interface
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status written to the client, falling back to 500.
func (e *ProviderError) HTTPStatusCode() int {
	if e.StatusCode < 400 || e.StatusCode > 599 {
		return http.StatusInternalServerError
	}
	return e.StatusCode
}

// ToJSON converts the error to the client-facing envelope.
func (e *ProviderError) ToJSON() ErrorEnvelope {
	msg := e.Message
	if msg == "" {
		msg = e.RawMessage
	}
	if msg == "" {
		msg = DefaultErrorMessage
	}
	return ErrorEnvelope{Message: msg}
}

// NewProviderError creates a provider error whose user-facing message starts
// out equal to the raw message.
func NewProviderError(provider string, statusCode int, message string, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		RawMessage: message,
		Message:    message,
		Err:        err,
	}
}

// NewInvalidRequestError creates a 400 error that never reached an upstream.
func NewInvalidRequestError(message string, err error) *ProviderError {
	return &ProviderError{
		StatusCode: http.StatusBadRequest,
		RawMessage: message,
		Message:    message,
		Err:        err,
	}
}

// ParseUpstreamError builds a ProviderError from a non-2xx upstream response.
// OpenAI-compatible providers report {"error":{"message":...}}; anything else
// is kept verbatim.
func ParseUpstreamError(provider string, statusCode int, body []byte, originalErr error) *ProviderError {
	message := strings.TrimSpace(string(body))
	if gjson.ValidBytes(body) {
		if m := gjson.GetBytes(body, "error.message"); m.Exists() && m.String() != "" {
			message = m.String()
		} else if m := gjson.GetBytes(body, "message"); m.Exists() && m.String() != "" {
			message = m.String()
		} else if m := gjson.GetBytes(body, "error"); m.Type == gjson.String && m.String() != "" {
			message = m.String()
		}
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return NewProviderError(provider, statusCode, message, originalErr)
}

// AsProviderError converts any error into a ProviderError. Unknown errors keep
// their text and get status 500. An existing ProviderError is never modified;
// filling in the provider name yields a copy.
func AsProviderError(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		if pErr.Provider != "" {
			return pErr
		}
		out := *pErr
		out.Provider = provider
		return &out
	}
	msg := err.Error()
	if msg == "" {
		msg = DefaultErrorMessage
	}
	return NewProviderError(provider, http.StatusInternalServerError, msg, err)
}
