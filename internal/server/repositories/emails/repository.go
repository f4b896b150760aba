// Package emails persists the addresses attached to accounts.
package emails

import (
	"context"

	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

type Repository interface {
	// Add fails with common.ErrorDuplicateAddress if the address exists.
	Add(ctx context.Context, e *models.Email) error
	Get(ctx context.Context, address string) (*models.Email, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.Email, error)
	Delete(ctx context.Context, address string) error
}
