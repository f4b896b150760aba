package client

import (
	"context"
	"crypto"
)

// EmailInfo describes one address attached to the authenticated account.
type EmailInfo struct {
	Verified bool   `json:"verified"`
	Type     string `json:"type"`
}

// AddressInfo tells whether an address is vouched for by an identity
// provider (primary) or by the issuing server (secondary).
type AddressInfo struct {
	Type      string `json:"type"`
	Discovery string `json:"discovery,omitempty"`
	Known     bool   `json:"known"`
}

// Client is the issuing server's API as seen by the client.
type Client interface {
	SessionContext(ctx context.Context) (*ClientContext, error)
	Ping(ctx context.Context) error

	StageUser(ctx context.Context, cc *ClientContext, email, site string) error
	UserCreationStatus(ctx context.Context, email string) (string, error)
	CompleteUserCreation(ctx context.Context, cc *ClientContext, token, password string) error

	StageEmail(ctx context.Context, cc *ClientContext, email, site string) error
	EmailAdditionStatus(ctx context.Context, email string) (string, error)
	CompleteEmailAddition(ctx context.Context, cc *ClientContext, token string) error

	StageReset(ctx context.Context, cc *ClientContext, email, site string) error
	CompleteReset(ctx context.Context, cc *ClientContext, token, password string) error

	Authenticate(ctx context.Context, cc *ClientContext, email, password string) (bool, error)
	Logout(ctx context.Context, cc *ClientContext) error

	CertKey(ctx context.Context, cc *ClientContext, email string, pub crypto.PublicKey) (string, error)

	HaveEmail(ctx context.Context, email string) (bool, error)
	EmailForToken(ctx context.Context, token string) (string, error)
	AddressInfo(ctx context.Context, email string) (*AddressInfo, error)
	ListEmails(ctx context.Context) (map[string]EmailInfo, error)
	RemoveEmail(ctx context.Context, cc *ClientContext, email string) error
	CancelAccount(ctx context.Context, cc *ClientContext) error
}
