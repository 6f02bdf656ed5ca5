package llm

import (
	"errors"
	"fmt"
)

// ErrorResponse represents an error returned to HTTP clients.
type ErrorResponse struct {
	Error string    `json:"error"`
	Kind  ErrorKind `json:"kind,omitempty"`
}

// ErrMissingCredential is returned when no API key is configured. It is fatal
// at startup: nothing can be submitted without a credential.
var ErrMissingCredential = errors.New("missing API credential: set GEMINI_API_KEY or GOOGLE_API_KEY")

// ErrorKind classifies a failed chat API call.
type ErrorKind string

const (
	KindAuth              ErrorKind = "auth"
	KindNetwork           ErrorKind = "network"
	KindQuota             ErrorKind = "quota"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// Sentinels matched by errors.Is against an *APIError of the same kind.
var (
	ErrAuth              = errors.New("authentication failed")
	ErrNetwork           = errors.New("network failure")
	ErrQuota             = errors.New("quota exceeded")
	ErrMalformedResponse = errors.New("malformed response")
)

// APIError is the only error a chat API call can fail with.
type APIError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewAPIError wraps err under the given kind.
func NewAPIError(kind ErrorKind, message string, err error) *APIError {
	return &APIError{Kind: kind, Message: message, Err: err}
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return string(e.Kind) + " error"
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *APIError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Transient reports whether retrying the same turn later could succeed.
func (e *APIError) Transient() bool {
	return e.Kind == KindNetwork || e.Kind == KindQuota
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindNetwork:
		return ErrNetwork
	case KindQuota:
		return ErrQuota
	case KindMalformedResponse:
		return ErrMalformedResponse
	}
	return nil
}

// KindOf returns the kind of an *APIError found in err's chain, or "" when
// err is not a chat API failure.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}
