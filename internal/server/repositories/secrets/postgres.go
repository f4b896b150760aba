package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/dbx"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

const secretColumns = `token, purpose, email, account_id, site, issued_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, s *models.VerificationSecret) error {
	query :=
		`INSERT INTO verification_secrets (token, purpose, email, account_id, site, issued_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `

	var accountID sql.NullString
	if s.AccountID != "" {
		accountID = sql.NullString{String: s.AccountID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, s.Token, string(s.Purpose), s.Email, accountID, s.Site, s.IssuedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteFor(ctx context.Context, email string, purpose models.Purpose) error {
	query := `DELETE FROM verification_secrets WHERE email = $1 AND purpose = $2`

	if _, err := r.db.ExecContext(ctx, query, email, string(purpose)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, token string) (*models.VerificationSecret, error) {
	query := `SELECT ` + secretColumns + ` FROM verification_secrets WHERE token = $1`
	return scanSecret(r.db.QueryRowContext(ctx, query, token))
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string, purpose models.Purpose) (*models.VerificationSecret, error) {
	query := `SELECT ` + secretColumns + ` FROM verification_secrets WHERE email = $1 AND purpose = $2`
	return scanSecret(r.db.QueryRowContext(ctx, query, email, string(purpose)))
}

func (r *PostgresRepository) Take(ctx context.Context, token string) (*models.VerificationSecret, error) {
	query := `DELETE FROM verification_secrets WHERE token = $1 RETURNING ` + secretColumns
	return scanSecret(r.db.QueryRowContext(ctx, query, token))
}

func (r *PostgresRepository) DeleteIssuedBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_secrets WHERE issued_at < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func scanSecret(row *sql.Row) (*models.VerificationSecret, error) {
	var (
		s         models.VerificationSecret
		purpose   string
		accountID sql.NullString
	)

	err := row.Scan(&s.Token, &purpose, &s.Email, &accountID, &s.Site, &s.IssuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	p, err := models.ParsePurpose(purpose)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.Purpose = p
	s.AccountID = accountID.String

	return &s, nil
}
