package client

import "errors"

var (
	// ErrUnavailable: the issuing server could not be reached or answered
	// with an unexpected status.
	ErrUnavailable = errors.New("server unavailable")
	// ErrUnauthorized: bad credentials, or a vault password mismatch.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRejected: the server answered {"success": false}.
	ErrRejected = errors.New("request rejected")
	// ErrLocalDataNotAvailable: the local vault is incomplete.
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
)
