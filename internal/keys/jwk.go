package keys

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/go-jose/go-jose/v4"
)

// MarshalPublicJWK encodes pub as a JSON Web Key carrying its algorithm
// and a SHA-256 thumbprint key id.
func MarshalPublicJWK(pub crypto.PublicKey) ([]byte, error) {
	method, err := MethodFor(pub)
	if err != nil {
		return nil, err
	}

	jwk := jose.JSONWebKey{Key: pub, Algorithm: method.Alg(), Use: "sig"}
	thumb, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	jwk.KeyID = base64.RawURLEncoding.EncodeToString(thumb)

	return jwk.MarshalJSON()
}

// ParsePublicJWK decodes a JSON Web Key holding a public key.
func ParsePublicJWK(data []byte) (crypto.PublicKey, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	if !jwk.Valid() || !jwk.IsPublic() {
		return nil, fmt.Errorf("%w: not a valid public JWK", common.ErrorCrypto)
	}
	return jwk.Key, nil
}

// ParsePublicKey accepts either a JWK document or a PKIX PEM block.
func ParsePublicKey(data []byte) (crypto.PublicKey, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		return ParsePublicJWK(trimmed)
	}

	block, _ := pem.Decode(trimmed)
	if block == nil || block.Type != pemPublicKey {
		return nil, fmt.Errorf("%w: unrecognized public key encoding", common.ErrorCrypto)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	return pub, nil
}
