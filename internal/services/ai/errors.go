package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
)

// ErrEmptyResponse is returned when the provider answered without any content.
var ErrEmptyResponse = errors.New("no choices in response")

// APIError carries the provider's structured error details
type APIError struct {
	Message    string
	Type       string
	Code       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// IsQuota reports whether the account ran out of credit, which no retry can fix.
func (e *APIError) IsQuota() bool {
	return e.Code == "insufficient_quota"
}

// TransportError is a failed round trip to the language service.
type TransportError struct {
	Provider string
	// Permanent is set for failures a retry cannot fix, such as bad credentials.
	Permanent bool
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var te *TransportError
	return errors.As(err, &te) && te.Permanent
}

// IsRateLimitError checks if an error is a provider rate limit
func IsRateLimitError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests && !apiErr.IsQuota()
	}
	return false
}

// classifyOpenAIError converts an SDK error into a TransportError.
func classifyOpenAIError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var sdkErr *openai.Error
	if !errors.As(err, &sdkErr) {
		// network failures and deadline overruns are transient
		return &TransportError{Provider: provider, Err: err}
	}

	apiErr := &APIError{
		Message:    sdkErr.Message,
		Type:       sdkErr.Type,
		Code:       sdkErr.Code,
		StatusCode: sdkErr.StatusCode,
	}
	return &TransportError{
		Provider:  provider,
		Permanent: permanentStatus(apiErr),
		Err:       apiErr,
	}
}

func permanentStatus(e *APIError) bool {
	if e.IsQuota() {
		return true
	}
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
