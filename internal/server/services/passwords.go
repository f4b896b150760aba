package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// PasswordHasher hashes and checks passwords. Implementations may refuse
// work with common.ErrorServerBusy when saturated.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	// Compare reports whether password matches hash. A mismatch is not an error.
	Compare(ctx context.Context, hash, password string) (bool, error)
	// NeedsRehash reports whether hash was made with a different work
	// factor than the one currently configured.
	NeedsRehash(hash string) bool
}

// BcryptHasher runs bcrypt with a bounded number of concurrent
// computations. Callers wait at most queueTimeout for a slot.
type BcryptHasher struct {
	cost         int
	sem          *semaphore.Weighted
	queueTimeout time.Duration
}

func NewBcryptHasher(cost int, maxConcurrent int64, queueTimeout time.Duration) *BcryptHasher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &BcryptHasher{
		cost:         cost,
		sem:          semaphore.NewWeighted(maxConcurrent),
		queueTimeout: queueTimeout,
	}
}

func (h *BcryptHasher) Cost() int { return h.cost }

func (h *BcryptHasher) acquire(ctx context.Context) (func(), error) {
	if h.queueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.queueTimeout)
		defer cancel()
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, common.ErrorServerBusy
	}
	return func() { h.sem.Release(1) }, nil
}

func (h *BcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	release, err := h.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Compare(ctx context.Context, hash, password string) (bool, error) {
	release, err := h.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("bcrypt: %w", err)
	}
}

func (h *BcryptHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return cost != h.cost
}

// CheckPasswordLength enforces the accepted password length. It runs
// before any hashing so oversized inputs cost nothing.
func CheckPasswordLength(password string) error {
	if n := len(password); n < common.MinPasswordLength || n > common.MaxPasswordLength {
		return common.ErrorPasswordLength
	}
	return nil
}
