// Package cryptox seals client-side secrets (private keys) under a vault key
// derived from the user's password.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

// SaltSize is the length of the random salt stored next to a vault.
const SaltSize = 16

// MakeVerifier returns a value that can be stored to check a vault key
// without storing the key itself.
func MakeVerifier(vaultKey []byte) []byte {
	hash := sha256.Sum256(vaultKey)
	return hash[:]
}

// CheckVerifier reports whether vaultKey matches a verifier produced by MakeVerifier.
func CheckVerifier(vaultKey, verifier []byte) bool {
	return subtle.ConstantTimeCompare(MakeVerifier(vaultKey), verifier) == 1
}

// DeriveVaultKey derives a 256-bit AES key from the password with argon2id.
func DeriveVaultKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// Seal encrypts plaintext with AES-GCM. The random nonce is prepended to
// the returned ciphertext.
func Seal(plaintext, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())
	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal. Tampered data or a wrong key yield common.ErrorCrypto.
func Open(sealed, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	ns := aesgcm.NonceSize()
	if len(sealed) < ns {
		return nil, fmt.Errorf("%w: sealed data too short", common.ErrorCrypto)
	}

	plaintext, err := aesgcm.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	return plaintext, nil
}

// SealJSON serializes v to JSON and seals it.
//
// Example:
//
//	key := cryptox.DeriveVaultKey([]byte("password"), salt)
//	sealed, err := cryptox.SealJSON(record, key)
//	if err != nil {
//	    return err
//	}
//
//	var out Record
//	err = cryptox.OpenJSON(sealed, key, &out)
func SealJSON(v any, key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(plaintext)

	return Seal(plaintext, key)
}

// OpenJSON opens data produced by SealJSON and unmarshals it into v.
func OpenJSON(sealed, key []byte, v any) error {
	plaintext, err := Open(sealed, key)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
