package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/idkeeper/internal/client/client"
	"github.com/dmitrijs2005/idkeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/cryptox"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
)

const (
	keyVaultSalt     = "vault_salt"
	keyVaultVerifier = "vault_verifier"
)

// ErrVaultLocked is returned when sealed material is needed before Unlock.
var ErrVaultLocked = errors.New("vault is locked")

// Vault seals private keys under a key derived from the user's password.
// The salt and a verifier of the derived key are kept in the local store.
type Vault struct {
	repo kv.Repository

	mu  sync.Mutex
	key []byte
}

func NewVault(repo kv.Repository) *Vault {
	return &Vault{repo: repo}
}

// Unlock derives the vault key from password. The first call on a fresh
// store creates the vault. A password that does not match the stored
// verifier yields client.ErrUnauthorized.
func (v *Vault) Unlock(ctx context.Context, password []byte) error {
	salt, err := v.repo.Get(ctx, keyVaultSalt)
	if err != nil {
		return err
	}
	if salt == nil {
		return v.create(ctx, password)
	}

	verifier, err := v.repo.Get(ctx, keyVaultVerifier)
	if err != nil {
		return err
	}
	if verifier == nil {
		return client.ErrLocalDataNotAvailable
	}

	candidate := cryptox.DeriveVaultKey(password, salt)
	if !cryptox.CheckVerifier(candidate, verifier) {
		common.WipeByteArray(candidate)
		return client.ErrUnauthorized
	}

	v.set(candidate)
	return nil
}

func (v *Vault) create(ctx context.Context, password []byte) error {
	salt := common.GenerateRandByteArray(cryptox.SaltSize)
	key := cryptox.DeriveVaultKey(password, salt)

	if err := v.repo.Set(ctx, keyVaultSalt, salt); err != nil {
		return err
	}
	if err := v.repo.Set(ctx, keyVaultVerifier, cryptox.MakeVerifier(key)); err != nil {
		return err
	}

	v.set(key)
	return nil
}

// Reset forgets the vault. Material sealed under the old key can no
// longer be opened.
func (v *Vault) Reset(ctx context.Context) error {
	v.Lock()
	if err := v.repo.Delete(ctx, keyVaultSalt); err != nil {
		return err
	}
	return v.repo.Delete(ctx, keyVaultVerifier)
}

// Lock wipes the vault key from memory.
func (v *Vault) Lock() {
	v.set(nil)
}

func (v *Vault) Unlocked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.key != nil
}

func (v *Vault) set(key []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.key != nil {
		common.WipeByteArray(v.key)
	}
	v.key = key
}

// SealKey encrypts a private key for storage.
func (v *Vault) SealKey(kp *keys.KeyPair) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.key == nil {
		return nil, ErrVaultLocked
	}

	pemData, err := keys.EncodePrivatePEM(kp)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(pemData)

	return cryptox.Seal(pemData, v.key)
}

// OpenKey decrypts a key sealed by SealKey.
func (v *Vault) OpenKey(sealed []byte) (*keys.KeyPair, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.key == nil {
		return nil, ErrVaultLocked
	}

	pemData, err := cryptox.Open(sealed, v.key)
	if err != nil {
		return nil, fmt.Errorf("open sealed key: %w", err)
	}
	defer common.WipeByteArray(pemData)

	return keys.DecodePrivatePEM(pemData)
}
