// Package common defines shared constants and sentinel errors used across
// the issuing server, the verifier and the client. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound         = errors.New("not found")
	ErrorDuplicateAddress = errors.New("address already belongs to an account")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorSameAccount  = errors.New("that email does not belong to you")
	ErrorThrottled    = errors.New("throttled")
	ErrorServerBusy   = errors.New("server is too busy")

	// Validation errors (malformed or missing fields).
	ErrorValidation       = errors.New("validation error")
	ErrorPasswordLength   = errors.New("valid passwords are between 8 and 80 chars")
	ErrorMalformedBundle  = errors.New("malformed assertion")
	ErrorInvalidToken     = errors.New("invalid token")
	ErrorUnknownPurpose   = errors.New("unknown verification purpose")
	ErrorMalformedAddress = errors.New("malformed email address")

	// Verification errors.
	ErrorCrypto           = errors.New("crypto error")
	ErrorTransientNetwork = errors.New("transient network error")
)
