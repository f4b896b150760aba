package keys

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/filex"
)

// Source is where a serialized private key lives. Load returns
// common.ErrorNotFound when nothing has been stored yet.
type Source interface {
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, data []byte) error
}

// FileSource keeps the key in a local file readable only by its owner.
type FileSource struct {
	Path string
}

func (s FileSource) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.ErrorNotFound
	}
	return data, err
}

func (s FileSource) Store(ctx context.Context, data []byte) error {
	if err := filex.EnsureParentDir(s.Path); err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o600)
}

// LoadOrCreate loads the keypair from src, generating and storing a new
// one of the given algorithm when the source is empty.
func LoadOrCreate(ctx context.Context, src Source, alg Algorithm, now time.Time) (*KeyPair, error) {
	data, err := src.Load(ctx)
	switch {
	case err == nil:
		return DecodePrivatePEM(data)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("load key: %w", err)
	}

	k, err := Generate(alg, now)
	if err != nil {
		return nil, err
	}

	data, err = EncodePrivatePEM(k)
	if err != nil {
		return nil, err
	}
	if err := src.Store(ctx, data); err != nil {
		return nil, fmt.Errorf("store key: %w", err)
	}
	return k, nil
}
