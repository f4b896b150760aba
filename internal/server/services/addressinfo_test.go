package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/discovery"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	results map[string]*discovery.Result
	err     error
}

func (f fakeResolver) Lookup(_ context.Context, domain, _ string) (*discovery.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[domain]; ok {
		return r, nil
	}
	return nil, common.ErrorNotFound
}

func TestAddressInfoService_Info(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createAccount(t, "known@example.com", "longenough")

	kp, err := keys.Generate(keys.ES256, testNow)
	require.NoError(t, err)

	svc := NewAddressInfoService(fakeResolver{results: map[string]*discovery.Result{
		"idp.example":    {Domain: "idp.example", URL: "https://idp.example/xrd", Keys: []discovery.Key{{Key: kp.Public()}}},
		"nokeys.example": {Domain: "nokeys.example", URL: "https://nokeys.example/xrd"},
	}}, env.accounts, logging.Discard())

	info, err := svc.Info(ctx, "someone@idp.example")
	require.NoError(t, err)
	assert.Equal(t, &AddressInfo{Type: KindPrimary, Discovery: "https://idp.example/xrd"}, info)

	info, err = svc.Info(ctx, "someone@nokeys.example")
	require.NoError(t, err)
	assert.Equal(t, &AddressInfo{Type: KindSecondary}, info)

	info, err = svc.Info(ctx, "known@example.com")
	require.NoError(t, err)
	assert.Equal(t, &AddressInfo{Type: KindSecondary, Known: true}, info)

	_, err = svc.Info(ctx, "garbage")
	assert.ErrorIs(t, err, common.ErrorMalformedAddress)
}

func TestAddressInfoService_DiscoveryFailureFallsBack(t *testing.T) {
	env := newTestEnv(t)
	svc := NewAddressInfoService(fakeResolver{err: fmt.Errorf("%w: boom", common.ErrorTransientNetwork)}, env.accounts, logging.Discard())

	info, err := svc.Info(context.Background(), "a@idp.example")
	require.NoError(t, err)
	assert.Equal(t, KindSecondary, info.Type)
}
