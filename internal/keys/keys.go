// Package keys is the KeyStore: it generates, persists, and loads
// asymmetric keypairs, converts public keys to and from JWK, and signs or
// verifies byte strings with the algorithm implied by the key type.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
)

// Algorithm names a key family supported by Generate.
type Algorithm string

const (
	RS256 Algorithm = "RS256"
	ES256 Algorithm = "ES256"
	EdDSA Algorithm = "EdDSA"
)

const (
	pemPrivateKey = "PRIVATE KEY"
	pemPublicKey  = "PUBLIC KEY"
	pemCreated    = "Created"
	rsaBits       = 2048
)

// KeyPair is a private key together with the time it was created. The
// creation time is published so that clients can discard certificates
// signed by a rotated key.
type KeyPair struct {
	Private   crypto.Signer
	CreatedAt time.Time
}

// Public returns the public half of the pair.
func (k *KeyPair) Public() crypto.PublicKey {
	return k.Private.Public()
}

// Sign signs data with the pair's private key.
func (k *KeyPair) Sign(data []byte) ([]byte, error) {
	return Sign(k.Private, data)
}

// Generate creates a new keypair of the given algorithm.
func Generate(alg Algorithm, now time.Time) (*KeyPair, error) {
	var (
		priv crypto.Signer
		err  error
	)

	switch alg {
	case RS256:
		priv, err = rsa.GenerateKey(rand.Reader, rsaBits)
	case ES256:
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case EdDSA:
		_, priv, err = ed25519.GenerateKey(rand.Reader)
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", common.ErrorValidation, alg)
	}
	if err != nil {
		return nil, err
	}

	return &KeyPair{Private: priv, CreatedAt: now.UTC().Truncate(time.Millisecond)}, nil
}

// EncodePrivatePEM serializes the pair as a PKCS#8 PEM block with the
// creation time in a block header.
func EncodePrivatePEM(k *KeyPair) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.Private)
	if err != nil {
		return nil, err
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:    pemPrivateKey,
		Headers: map[string]string{pemCreated: k.CreatedAt.UTC().Format(time.RFC3339Nano)},
		Bytes:   der,
	}), nil
}

// DecodePrivatePEM parses data produced by EncodePrivatePEM. A missing
// creation header yields a zero CreatedAt.
func DecodePrivatePEM(data []byte) (*KeyPair, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemPrivateKey {
		return nil, fmt.Errorf("%w: no private key PEM block", common.ErrorCrypto)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}

	signer, ok := parsed.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: key type %T cannot sign", common.ErrorCrypto, parsed)
	}

	k := &KeyPair{Private: signer}
	if v, ok := block.Headers[pemCreated]; ok {
		created, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("%w: bad created header: %v", common.ErrorCrypto, err)
		}
		k.CreatedAt = created
	}
	return k, nil
}

// EncodePublicPEM serializes a public key as a PKIX PEM block.
func EncodePublicPEM(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemPublicKey, Bytes: der}), nil
}
