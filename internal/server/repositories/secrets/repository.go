// Package secrets persists one-time verification secrets.
package secrets

import (
	"context"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, s *models.VerificationSecret) error
	// DeleteFor removes any live secret staged for email and purpose.
	DeleteFor(ctx context.Context, email string, purpose models.Purpose) error
	Get(ctx context.Context, token string) (*models.VerificationSecret, error)
	FindByEmail(ctx context.Context, email string, purpose models.Purpose) (*models.VerificationSecret, error)
	// Take atomically looks up and deletes the secret. Of several concurrent
	// callers with the same token exactly one gets the record; the rest get
	// common.ErrorNotFound.
	Take(ctx context.Context, token string) (*models.VerificationSecret, error)
	DeleteIssuedBefore(ctx context.Context, t time.Time) (int64, error)
}
