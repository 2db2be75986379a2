package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/croftbase/member-console/models"
	"github.com/lib/pq"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountConflict    = errors.New("account already linked")
	ErrAccountUserInvalid = errors.New("account user invalid")
)

// AccountRepository links external identity provider accounts to users.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByProvider(ctx context.Context, provider, providerAccountID string) (*models.Account, error)
	ListByUserID(ctx context.Context, userID int) ([]models.Account, error)
}

type postgresAccountRepository struct {
	db *sql.DB
}

func NewPostgresAccountRepository(db *sql.DB) AccountRepository {
	return &postgresAccountRepository{db: db}
}

func (r *postgresAccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (user_id, provider, provider_account_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		account.UserID,
		account.Provider,
		account.ProviderAccountID,
	).Scan(&account.ID, &account.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505":
				if pqErr.Constraint == "accounts_provider_account_key" || pqErr.Constraint == "accounts_user_provider_key" {
					return ErrAccountConflict
				}
			case "23503":
				if pqErr.Constraint == "accounts_user_id_fkey" {
					return ErrAccountUserInvalid
				}
			}
		}
		return err
	}
	return nil
}

func (r *postgresAccountRepository) GetByProvider(ctx context.Context, provider, providerAccountID string) (*models.Account, error) {
	query := `
		SELECT id, user_id, provider, provider_account_id, created_at
		FROM accounts
		WHERE provider = $1 AND provider_account_id = $2`

	account := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, provider, providerAccountID).Scan(
		&account.ID,
		&account.UserID,
		&account.Provider,
		&account.ProviderAccountID,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (r *postgresAccountRepository) ListByUserID(ctx context.Context, userID int) ([]models.Account, error) {
	query := `
		SELECT id, user_id, provider, provider_account_id, created_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]models.Account, 0)
	for rows.Next() {
		var account models.Account
		if scanErr := rows.Scan(
			&account.ID,
			&account.UserID,
			&account.Provider,
			&account.ProviderAccountID,
			&account.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		accounts = append(accounts, account)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}
