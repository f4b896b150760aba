package keys

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// MethodFor returns the JWS signing method matching a private or public key.
func MethodFor(key any) (jwt.SigningMethod, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey, *rsa.PublicKey:
		return jwt.SigningMethodRS256, nil
	case *ecdsa.PrivateKey:
		return ecdsaMethod(k.Curve)
	case *ecdsa.PublicKey:
		return ecdsaMethod(k.Curve)
	case ed25519.PrivateKey, ed25519.PublicKey:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, fmt.Errorf("%w: unsupported key type %T", common.ErrorCrypto, key)
	}
}

func ecdsaMethod(curve elliptic.Curve) (jwt.SigningMethod, error) {
	switch curve {
	case elliptic.P256():
		return jwt.SigningMethodES256, nil
	case elliptic.P384():
		return jwt.SigningMethodES384, nil
	case elliptic.P521():
		return jwt.SigningMethodES512, nil
	default:
		return nil, fmt.Errorf("%w: unsupported curve", common.ErrorCrypto)
	}
}

// Sign signs data with priv using the algorithm implied by its type.
func Sign(priv any, data []byte) ([]byte, error) {
	method, err := MethodFor(priv)
	if err != nil {
		return nil, err
	}
	sig, err := method.Sign(string(data), priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	return sig, nil
}

// Verify checks sig over data against pub. Any failure, including an
// unsupported key, is reported as common.ErrorCrypto.
func Verify(pub any, data, sig []byte) error {
	method, err := MethodFor(pub)
	if err != nil {
		return err
	}
	if err := method.Verify(string(data), sig, pub); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	return nil
}
