package services

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/jwcrypto"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/servertest"
	"github.com/dmitrijs2005/idkeeper/internal/verifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) verify(t *testing.T, bundle string) verifier.Result {
	t.Helper()
	v := verifier.New(servertest.Issuer, verifier.StaticKeys{e.server.Key.Public()}, nil, e.serverClock, logging.Discard())
	return v.Verify(context.Background(), bundle, testAudience)
}

func TestAssertionBuilder_RoundTrip(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.signUp(t, "alice@example.com")

	bundle, err := e.identity.Assert(context.Background(), "alice@example.com", testAudience)
	require.NoError(t, err)

	res := e.verify(t, bundle)
	require.True(t, res.OK(), res.Reason)
	assert.Equal(t, "alice@example.com", res.Email)
	assert.Equal(t, servertest.Issuer, res.Issuer)
	assert.Equal(t, testAudience, res.Audience)
	assert.Equal(t, testNow.Add(common.AssertionValidity).UnixMilli(), res.Expires)
}

func TestAssertionBuilder_ReusesCertificate(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.signUp(t, "alice@example.com")
	ctx := context.Background()

	first, err := e.identity.Assert(ctx, "alice@example.com", testAudience)
	require.NoError(t, err)
	e.advance(time.Minute)
	second, err := e.identity.Assert(ctx, "alice@example.com", testAudience)
	require.NoError(t, err)

	a, err := jwcrypto.ParseBundle(first)
	require.NoError(t, err)
	b, err := jwcrypto.ParseBundle(second)
	require.NoError(t, err)
	assert.Equal(t, a.Certificates, b.Certificates)
	assert.NotEqual(t, a.Assertion, b.Assertion)
}

func TestAssertionBuilder_ClockSkew(t *testing.T) {
	for _, skew := range []time.Duration{-3 * time.Hour, 5 * time.Minute, 48 * time.Hour} {
		t.Run(skew.String(), func(t *testing.T) {
			e := newEnv(t, envOptions{skew: skew})
			e.signUp(t, "alice@example.com")

			bundle, err := e.identity.Assert(context.Background(), "alice@example.com", testAudience)
			require.NoError(t, err)

			res := e.verify(t, bundle)
			require.True(t, res.OK(), res.Reason)
			assert.Equal(t, testNow.Add(common.AssertionValidity).UnixMilli(), res.Expires)
		})
	}
}

func TestAssertionBuilder_RecertifiesBeforeExpiry(t *testing.T) {
	e := newEnv(t, envOptions{validity: 10 * time.Minute})
	e.signUp(t, "alice@example.com")
	ctx := context.Background()

	first, err := e.identity.Assert(ctx, "alice@example.com", testAudience)
	require.NoError(t, err)

	// Inside the safety margin of the first certificate.
	e.advance(9 * time.Minute)
	second, err := e.identity.Assert(ctx, "alice@example.com", testAudience)
	require.NoError(t, err)

	a, err := jwcrypto.ParseBundle(first)
	require.NoError(t, err)
	b, err := jwcrypto.ParseBundle(second)
	require.NoError(t, err)
	assert.NotEqual(t, a.Certificates, b.Certificates)

	leaf, err := jwcrypto.ParseCertificate(b.Certificates[0])
	require.NoError(t, err)
	assert.True(t, testNow.Add(19*time.Minute).Equal(leaf.ExpiresAt))

	res := e.verify(t, second)
	assert.True(t, res.OK(), res.Reason)
}

func TestAssertionBuilder_BoundedRetry(t *testing.T) {
	// Every certificate is born inside the safety margin.
	e := newEnv(t, envOptions{validity: time.Minute})
	e.signUp(t, "alice@example.com")

	_, err := e.identity.Assert(context.Background(), "alice@example.com", testAudience)
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func TestAssertionBuilder_Errors(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.signUp(t, "alice@example.com")
	ctx := context.Background()

	_, err := e.identity.Assert(ctx, "alice@example.com", "")
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = e.identity.Assert(ctx, "nobody@example.com", testAudience)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, e.cache.Put(ctx, "p@idp.example", Primary{DiscoveryURL: "https://idp.example/.well-known/browserid"}))
	_, err = e.identity.Assert(ctx, "p@idp.example", testAudience)
	assert.ErrorIs(t, err, ErrNoProvisioner)
}

type fakeProvisioner struct {
	root  *keys.KeyPair
	inter *keys.KeyPair
	now   time.Time
	calls int
}

// Provision returns a two-certificate chain: the provider's root certifies
// an intermediate key, which certifies pub.
func (p *fakeProvisioner) Provision(_ context.Context, email, _ string, pub crypto.PublicKey) ([]string, error) {
	p.calls++
	root, err := jwcrypto.SignCertificate(p.root.Private, "idp.example", email, p.inter.Public(), p.now, p.now.Add(time.Hour))
	if err != nil {
		return nil, err
	}
	leaf, err := jwcrypto.SignCertificate(p.inter.Private, "idp.example", email, pub, p.now, p.now.Add(time.Hour))
	if err != nil {
		return nil, err
	}
	return []string{root, leaf}, nil
}

func TestAssertionBuilder_Primary(t *testing.T) {
	root, err := keys.Generate(keys.RS256, testNow)
	require.NoError(t, err)
	inter, err := keys.Generate(keys.ES256, testNow)
	require.NoError(t, err)
	p := &fakeProvisioner{root: root, inter: inter, now: testNow}

	e := newEnv(t, envOptions{provisioner: p})
	ctx := context.Background()
	require.NoError(t, e.vault.Unlock(ctx, []byte(testPassword)))
	require.NoError(t, e.cache.Put(ctx, "p@idp.example", Primary{DiscoveryURL: "https://idp.example/.well-known/browserid"}))

	encoded, err := e.identity.Assert(ctx, "p@idp.example", testAudience)
	require.NoError(t, err)

	_, err = e.identity.Assert(ctx, "p@idp.example", testAudience)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)

	b, err := jwcrypto.ParseBundle(encoded)
	require.NoError(t, err)
	require.Len(t, b.Certificates, 2)

	rootCert, err := jwcrypto.ParseCertificate(b.Certificates[0])
	require.NoError(t, err)
	require.NoError(t, rootCert.VerifySignature(root.Public()))

	leaf, err := jwcrypto.ParseCertificate(b.Certificates[1])
	require.NoError(t, err)
	require.NoError(t, leaf.VerifySignature(inter.Public()))
	assert.Equal(t, "p@idp.example", leaf.Email)

	id, err := e.cache.Get(ctx, "p@idp.example", testNow, testNow)
	require.NoError(t, err)
	assert.True(t, id.Key.Public().(*ecdsa.PublicKey).Equal(leaf.PublicKey))
}
