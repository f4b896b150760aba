package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/discovery"
	"github.com/dmitrijs2005/idkeeper/internal/jwcrypto"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
)

// AddressKind tells who vouches for an address.
type AddressKind string

const (
	// KindSecondary addresses are certified by this server after password
	// authentication.
	KindSecondary AddressKind = "secondary"
	// KindPrimary addresses are certified by an identity provider found
	// through discovery.
	KindPrimary AddressKind = "primary"
)

// AddressInfo is the answer to address_info.
type AddressInfo struct {
	Type AddressKind `json:"type"`
	// Discovery is the provider's address document, primary only.
	Discovery string `json:"discovery,omitempty"`
	// Known reports whether a secondary address has an account here.
	Known bool `json:"known"`
}

// KeyResolver finds identity-provider keys for an address.
type KeyResolver interface {
	Lookup(ctx context.Context, domain, address string) (*discovery.Result, error)
}

// AddressInfoService classifies addresses as primary or secondary.
type AddressInfoService struct {
	resolver KeyResolver
	accounts *AccountService
	logger   logging.Logger
}

func NewAddressInfoService(resolver KeyResolver, accounts *AccountService, logger logging.Logger) *AddressInfoService {
	return &AddressInfoService{resolver: resolver, accounts: accounts, logger: logger.With("module", "addressinfo")}
}

// Info reports primary when the address's domain answers discovery with
// at least one key, and secondary otherwise. Discovery failures fall back
// to secondary.
func (s *AddressInfoService) Info(ctx context.Context, email string) (*AddressInfo, error) {
	if err := ValidateAddress(email); err != nil {
		return nil, err
	}

	if s.resolver != nil {
		res, err := s.resolver.Lookup(ctx, jwcrypto.EmailDomain(email), email)
		switch {
		case err == nil && len(res.Keys) > 0:
			return &AddressInfo{Type: KindPrimary, Discovery: res.URL}, nil
		case err != nil && !errors.Is(err, common.ErrorNotFound):
			s.logger.Warn(ctx, "discovery failed, treating address as secondary", "email", email, "error", err)
		}
	}

	known, err := s.accounts.HaveEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return &AddressInfo{Type: KindSecondary, Known: known}, nil
}
