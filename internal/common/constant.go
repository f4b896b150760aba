package common

import "time"

const (
	// SessionCookieName carries the signed session state on /wsapi calls.
	SessionCookieName = "idkeeper_state"

	// CSRFFieldName is the body field every state-mutating request must carry.
	CSRFFieldName = "csrf"

	// MinPasswordLength and MaxPasswordLength bound accepted passwords.
	// Checked before any hashing happens.
	MinPasswordLength = 8
	MaxPasswordLength = 80

	// AssertionValidity is how long a freshly minted assertion is accepted.
	AssertionValidity = 2 * time.Minute

	// CertificateSafetyMargin: cached certificates closer than this to
	// expiry are treated as already expired.
	CertificateSafetyMargin = 2 * time.Minute

	// WellKnownPath is where the issuer publishes its public key.
	WellKnownPath = "/.well-known/browserid"
)
