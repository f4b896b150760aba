package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/idkeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/idkeeper/internal/filex"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Repositories is the client's local storage.
type Repositories struct {
	KV kv.Repository
	DB *sql.DB
}

// Close releases the underlying database.
func (r *Repositories) Close() error {
	return r.DB.Close()
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the SQLite database at dsn and migrates it.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	if filex.IsLocalPath(dsn) {
		if err := filex.EnsureParentDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite free of lock contention.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		KV: kv.NewSQLiteRepository(db),
		DB: db,
	}, nil
}
