package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/croftbase/member-console/models"
	"github.com/lib/pq"
)

var (
	ErrVerificationNotFound      = errors.New("verification not found")
	ErrVerificationTokenConflict = errors.New("verification token conflict")
)

// VerificationRepository stores single-use tokens (invitations, email
// verification, password resets). Only the SHA-256 hash of a token is
// persisted; the raw token lives exclusively in the link sent to the user.
type VerificationRepository interface {
	Create(ctx context.Context, verification *models.Verification) error

	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Verification, error)

	// ConsumeByTokenHash atomically deletes the row with the given hash and
	// returns it. Concurrent calls for the same token succeed at most once;
	// the losers get ErrVerificationNotFound.
	ConsumeByTokenHash(ctx context.Context, tokenHash string) (*models.Verification, error)

	Delete(ctx context.Context, id string) error

	// DeleteByIdentifier removes every token issued for an identifier and
	// returns how many were dropped.
	DeleteByIdentifier(ctx context.Context, identifier string) (int64, error)

	// ListByIdentifierPrefix returns tokens whose identifier starts with the
	// given scope prefix, newest first.
	ListByIdentifierPrefix(ctx context.Context, prefix string) ([]*models.Verification, error)

	// CountActiveByIdentifierPrefix counts unexpired tokens under a scope prefix.
	CountActiveByIdentifierPrefix(ctx context.Context, prefix string) (int, error)

	// DeleteExpired removes all tokens past their expiry and returns the count.
	DeleteExpired(ctx context.Context) (int64, error)
}

type postgresVerificationRepository struct {
	db *sql.DB
}

func NewPostgresVerificationRepository(db *sql.DB) VerificationRepository {
	return &postgresVerificationRepository{db: db}
}

func (r *postgresVerificationRepository) Create(ctx context.Context, verification *models.Verification) error {
	query := `
		INSERT INTO verifications (id, identifier, token_hash, value, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		verification.ID,
		verification.Identifier,
		verification.TokenHash,
		verification.Value,
		verification.ExpiresAt,
	).Scan(&verification.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" && pqErr.Constraint == "verifications_token_hash_key" {
				return ErrVerificationTokenConflict
			}
		}
		return err
	}
	return nil
}

func (r *postgresVerificationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Verification, error) {
	query := `
		SELECT id, identifier, token_hash, value, expires_at, created_at
		FROM verifications
		WHERE token_hash = $1`

	return r.scanVerification(r.db.QueryRowContext(ctx, query, tokenHash))
}

func (r *postgresVerificationRepository) ConsumeByTokenHash(ctx context.Context, tokenHash string) (*models.Verification, error) {
	query := `
		DELETE FROM verifications
		WHERE token_hash = $1
		RETURNING id, identifier, token_hash, value, expires_at, created_at`

	return r.scanVerification(r.db.QueryRowContext(ctx, query, tokenHash))
}

func (r *postgresVerificationRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM verifications WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrVerificationNotFound)
}

func (r *postgresVerificationRepository) DeleteByIdentifier(ctx context.Context, identifier string) (int64, error) {
	query := `DELETE FROM verifications WHERE identifier = $1`

	result, err := r.db.ExecContext(ctx, query, identifier)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *postgresVerificationRepository) ListByIdentifierPrefix(ctx context.Context, prefix string) ([]*models.Verification, error) {
	query := `
		SELECT id, identifier, token_hash, value, expires_at, created_at
		FROM verifications
		WHERE identifier LIKE $1 || '%'
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	verifications := make([]*models.Verification, 0)
	for rows.Next() {
		var v models.Verification
		if scanErr := rows.Scan(
			&v.ID,
			&v.Identifier,
			&v.TokenHash,
			&v.Value,
			&v.ExpiresAt,
			&v.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		verifications = append(verifications, &v)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return verifications, nil
}

func (r *postgresVerificationRepository) CountActiveByIdentifierPrefix(ctx context.Context, prefix string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM verifications
		WHERE identifier LIKE $1 || '%' AND expires_at > NOW()`

	var count int
	if err := r.db.QueryRowContext(ctx, query, prefix).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *postgresVerificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM verifications WHERE expires_at <= NOW()`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *postgresVerificationRepository) scanVerification(row *sql.Row) (*models.Verification, error) {
	v := &models.Verification{}
	err := row.Scan(
		&v.ID,
		&v.Identifier,
		&v.TokenHash,
		&v.Value,
		&v.ExpiresAt,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVerificationNotFound
		}
		return nil, err
	}
	return v, nil
}
