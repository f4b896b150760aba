package repomanager

import (
	"context"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/emails"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/secrets"
)

// InMemoryRepositoryManager keeps everything in process memory.
type InMemoryRepositoryManager struct {
	store *memory.Store
}

func NewInMemoryRepositoryManager(now func() time.Time) *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{store: memory.NewStore(now)}
}

func (m *InMemoryRepositoryManager) Accounts() accounts.Repository { return m.store.Accounts() }
func (m *InMemoryRepositoryManager) Emails() emails.Repository     { return m.store.Emails() }
func (m *InMemoryRepositoryManager) Secrets() secrets.Repository   { return m.store.Secrets() }

func (m *InMemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return m.store.WithTx(ctx, func(ctx context.Context, tx *memory.Tx) error {
		return fn(ctx, memTx{tx})
	})
}

func (m *InMemoryRepositoryManager) RunMigrations(context.Context) error { return nil }
func (m *InMemoryRepositoryManager) Close() error                        { return nil }

type memTx struct{ tx *memory.Tx }

func (t memTx) Accounts() accounts.Repository { return t.tx.Accounts() }
func (t memTx) Emails() emails.Repository     { return t.tx.Emails() }
func (t memTx) Secrets() secrets.Repository   { return t.tx.Secrets() }
