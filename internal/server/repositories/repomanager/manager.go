// Package repomanager vends the server's repositories, either backed by
// PostgreSQL or held in memory, and runs multi-repository transactions.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/emails"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/secrets"
)

// Repositories is a set of repositories sharing one connection or transaction.
type Repositories interface {
	Accounts() accounts.Repository
	Emails() emails.Repository
	Secrets() secrets.Repository
}

type RepositoryManager interface {
	Repositories
	// WithTx runs fn with repositories bound to a single transaction that
	// commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	RunMigrations(ctx context.Context) error
	Close() error
}
