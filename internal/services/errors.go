package services

import (
	"errors"
	"net/http"
	"time"

	"device-ingest/internal/database"
	"device-ingest/internal/device"
	"device-ingest/internal/partition"
)

// Kind is the stable, machine-readable class of an Error.
type Kind string

const (
	KindMissingOrMalformedHeader Kind = "missing_or_malformed_header"
	KindMalformedToken           Kind = "malformed_token"
	KindInvalidIdentityFormat    Kind = "invalid_identity_format"
	KindCredentialMismatch       Kind = "credential_mismatch"
	KindRateLimitExceeded        Kind = "rate_limit_exceeded"
	KindUnknownCategory          Kind = "unknown_category"
	KindInvalidRecord            Kind = "invalid_record"
	KindDuplicateIdentity        Kind = "duplicate_identity"
	KindNotFound                 Kind = "not_found"
	KindUnauthorized             Kind = "unauthorized"
	KindInternal                 Kind = "internal_error"
)

// Error is an expected, client-facing failure. Message never contains
// credential, digest or identity material.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrMissingOrMalformedHeader = &Error{Kind: KindMissingOrMalformedHeader, Message: "missing or invalid authorization header"}
	ErrMalformedToken           = &Error{Kind: KindMalformedToken, Message: "invalid token format"}
	ErrInvalidIdentityFormat    = &Error{Kind: KindInvalidIdentityFormat, Message: "invalid device ID format"}
	ErrCredentialMismatch       = &Error{Kind: KindCredentialMismatch, Message: "invalid device credentials"}
	ErrRateLimitExceeded        = &Error{Kind: KindRateLimitExceeded, Message: "rate limit exceeded"}
	ErrUnknownCategory          = &Error{Kind: KindUnknownCategory, Message: "unknown category"}
	ErrInvalidRecord            = &Error{Kind: KindInvalidRecord, Message: "invalid record"}
	ErrDuplicateIdentity        = &Error{Kind: KindDuplicateIdentity, Message: "device already registered"}
	ErrNotFound                 = &Error{Kind: KindNotFound, Message: "device not found"}
	ErrTranscriptionNotFound    = &Error{Kind: KindNotFound, Message: "transcription not found"}
	ErrUnauthorized             = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrInternal                 = &Error{Kind: KindInternal, Message: "internal server error"}
)

func invalidRecord(msg string) *Error {
	return &Error{Kind: KindInvalidRecord, Message: msg}
}

// AsError classifies err. Errors from lower layers with a known meaning are
// translated; anything else becomes ErrInternal and ok is false.
func AsError(err error) (e *Error, ok bool) {
	if errors.As(err, &e) {
		return e, true
	}
	switch {
	case errors.Is(err, partition.ErrUnknownCategory):
		return ErrUnknownCategory, true
	case errors.Is(err, device.ErrInvalidIdentity):
		return ErrInvalidIdentityFormat, true
	case errors.Is(err, device.ErrDuplicateIdentity):
		return ErrDuplicateIdentity, true
	case errors.Is(err, device.ErrDeviceNotFound):
		return ErrNotFound, true
	case errors.Is(err, database.ErrTranscriptionNotFound):
		return ErrTranscriptionNotFound, true
	}
	return ErrInternal, false
}

// HTTPStatus maps an error kind onto a response status.
func HTTPStatus(k Kind) int {
	switch k {
	case KindMissingOrMalformedHeader, KindMalformedToken, KindInvalidIdentityFormat,
		KindCredentialMismatch, KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case KindUnknownCategory, KindInvalidRecord:
		return http.StatusBadRequest
	case KindDuplicateIdentity:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
