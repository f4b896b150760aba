// Package accounts persists accounts and their password hashes.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, passwordHash string) (*models.Account, error)
	Get(ctx context.Context, id string) (*models.Account, error)
	SetPasswordHash(ctx context.Context, id string, hash string) error
	// ReplacePasswordHash updates the hash only if it still equals oldHash.
	// It reports whether a row was updated.
	ReplacePasswordHash(ctx context.Context, id string, oldHash, newHash string) (bool, error)
	Delete(ctx context.Context, id string) error
}
