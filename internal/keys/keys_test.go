package keys

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 5, 1, 10, 0, 0, 123456789, time.UTC)

func TestGenerate_Types(t *testing.T) {
	tests := []struct {
		alg  Algorithm
		want any
	}{
		{RS256, &rsa.PrivateKey{}},
		{ES256, &ecdsa.PrivateKey{}},
		{EdDSA, ed25519.PrivateKey{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.alg), func(t *testing.T) {
			k, err := Generate(tt.alg, now)
			require.NoError(t, err)
			assert.IsType(t, tt.want, k.Private)
			assert.Equal(t, now.Truncate(time.Millisecond), k.CreatedAt)

			method, err := MethodFor(k.Private)
			require.NoError(t, err)
			assert.Equal(t, string(tt.alg), method.Alg())
		})
	}
}

func TestGenerate_Unsupported(t *testing.T) {
	_, err := Generate("HS256", now)
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestSignVerify(t *testing.T) {
	for _, alg := range []Algorithm{RS256, ES256, EdDSA} {
		t.Run(string(alg), func(t *testing.T) {
			k, err := Generate(alg, now)
			require.NoError(t, err)

			sig, err := k.Sign([]byte("payload"))
			require.NoError(t, err)

			require.NoError(t, Verify(k.Public(), []byte("payload"), sig))
			assert.ErrorIs(t, Verify(k.Public(), []byte("tampered"), sig), common.ErrorCrypto)

			other, err := Generate(alg, now)
			require.NoError(t, err)
			assert.ErrorIs(t, Verify(other.Public(), []byte("payload"), sig), common.ErrorCrypto)
		})
	}
}

func TestSign_RSAIsDeterministic(t *testing.T) {
	k, err := Generate(RS256, now)
	require.NoError(t, err)

	a, err := k.Sign([]byte("same input"))
	require.NoError(t, err)
	b, err := k.Sign([]byte("same input"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestMethodFor_Unsupported(t *testing.T) {
	_, err := MethodFor("not a key")
	assert.ErrorIs(t, err, common.ErrorCrypto)
}

func TestPrivatePEM_RoundTrip(t *testing.T) {
	k, err := Generate(ES256, now)
	require.NoError(t, err)

	data, err := EncodePrivatePEM(k)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Created: ")

	got, err := DecodePrivatePEM(data)
	require.NoError(t, err)
	assert.True(t, k.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, k.Private.(*ecdsa.PrivateKey).Equal(got.Private))
}

func TestDecodePrivatePEM_Garbage(t *testing.T) {
	_, err := DecodePrivatePEM([]byte("not pem"))
	assert.ErrorIs(t, err, common.ErrorCrypto)
}

func TestJWK_RoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{RS256, ES256, EdDSA} {
		t.Run(string(alg), func(t *testing.T) {
			k, err := Generate(alg, now)
			require.NoError(t, err)

			data, err := MarshalPublicJWK(k.Public())
			require.NoError(t, err)

			var fields map[string]any
			require.NoError(t, json.Unmarshal(data, &fields))
			assert.Equal(t, string(alg), fields["alg"])
			assert.NotEmpty(t, fields["kid"])
			assert.NotContains(t, fields, "d")

			pub, err := ParsePublicJWK(data)
			require.NoError(t, err)

			sig, err := k.Sign([]byte("x"))
			require.NoError(t, err)
			require.NoError(t, Verify(pub, []byte("x"), sig))
		})
	}
}

func TestParsePublicKey_PEMAndJWK(t *testing.T) {
	k, err := Generate(RS256, now)
	require.NoError(t, err)

	pemData, err := EncodePublicPEM(k.Public())
	require.NoError(t, err)
	fromPEM, err := ParsePublicKey(pemData)
	require.NoError(t, err)
	assert.True(t, k.Public().(*rsa.PublicKey).Equal(fromPEM))

	jwkData, err := MarshalPublicJWK(k.Public())
	require.NoError(t, err)
	fromJWK, err := ParsePublicKey(append([]byte("  "), jwkData...))
	require.NoError(t, err)
	assert.True(t, k.Public().(*rsa.PublicKey).Equal(fromJWK))

	_, err = ParsePublicKey([]byte("garbage"))
	assert.ErrorIs(t, err, common.ErrorCrypto)
}

func TestParsePublicJWK_RejectsPrivate(t *testing.T) {
	_, err := ParsePublicJWK([]byte(`{"kty":"oct","k":"c2VjcmV0"}`))
	assert.ErrorIs(t, err, common.ErrorCrypto)
}

func TestFileSource_LoadOrCreate(t *testing.T) {
	ctx := context.Background()
	src := FileSource{Path: filepath.Join(t.TempDir(), "keys", "issuer.pem")}

	_, err := src.Load(ctx)
	require.ErrorIs(t, err, common.ErrorNotFound)

	first, err := LoadOrCreate(ctx, src, RS256, now)
	require.NoError(t, err)

	second, err := LoadOrCreate(ctx, src, RS256, now.Add(time.Hour))
	require.NoError(t, err)

	assert.True(t, first.Private.(*rsa.PrivateKey).Equal(second.Private))
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
}
