package core

import "errors"

// Error codes delivered to clients in error events.
const (
	ErrCodeInvalidIdentity  = "invalid_identity"
	ErrCodeIdentityMismatch = "identity_mismatch"
	ErrCodeEmptyContent     = "empty_content"
	ErrCodePersistence      = "persistence_failure"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInvalidMessage   = "invalid_message"
	ErrCodeInternal         = "internal"
)

var (
	ErrInvalidIdentity   = errors.New("invalid identity")
	ErrIdentityMismatch  = errors.New("identity mismatch")
	ErrEmptyContent      = errors.New("message content is empty")
	ErrPersistence       = errors.New("message could not be stored")
	ErrBadRequest        = errors.New("bad request")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrHubStopped        = errors.New("hub stopped")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.err
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// toCoreError maps sentinel errors to their wire codes.
func toCoreError(err error) *CoreError {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}

	code := ErrCodeInternal
	switch {
	case errors.Is(err, ErrInvalidIdentity):
		code = ErrCodeInvalidIdentity
	case errors.Is(err, ErrIdentityMismatch):
		code = ErrCodeIdentityMismatch
	case errors.Is(err, ErrEmptyContent):
		code = ErrCodeEmptyContent
	case errors.Is(err, ErrPersistence):
		code = ErrCodePersistence
	case errors.Is(err, ErrBadRequest):
		code = ErrCodeBadRequest
	}
	return &CoreError{Code: code, Message: err.Error(), err: err}
}
