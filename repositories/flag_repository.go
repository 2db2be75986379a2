package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/croftbase/member-console/models"
	"github.com/lib/pq"
)

var (
	ErrFlagNotFound     = errors.New("feature flag not found")
	ErrFlagNameConflict = errors.New("feature flag name conflict")
)

type FlagRepository interface {
	Create(ctx context.Context, flag *models.FeatureFlag) error
	GetByID(ctx context.Context, id int) (*models.FeatureFlag, error)
	GetByName(ctx context.Context, name string) (*models.FeatureFlag, error)
	List(ctx context.Context) ([]models.FeatureFlag, error)
	// Update persists name, description and metadata.
	Update(ctx context.Context, flag *models.FeatureFlag) error
	// SetEnabled flips the flag and returns the stored row.
	SetEnabled(ctx context.Context, id int, enabled bool) (*models.FeatureFlag, error)
	Delete(ctx context.Context, id int) error
	Counts(ctx context.Context) (total int, enabled int, err error)
}

type postgresFlagRepository struct {
	db *sql.DB
}

func NewPostgresFlagRepository(db *sql.DB) FlagRepository {
	return &postgresFlagRepository{db: db}
}

const flagColumns = `id, name, enabled, description, metadata, created_at, updated_at`

func (r *postgresFlagRepository) Create(ctx context.Context, flag *models.FeatureFlag) error {
	query := `
		INSERT INTO feature_flags (name, enabled, description, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		flag.Name,
		flag.Enabled,
		flag.Description,
		flag.Metadata,
	).Scan(&flag.ID, &flag.CreatedAt, &flag.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" && pqErr.Constraint == "feature_flags_name_key" {
				return ErrFlagNameConflict
			}
		}
		return err
	}
	return nil
}

func (r *postgresFlagRepository) GetByID(ctx context.Context, id int) (*models.FeatureFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM feature_flags WHERE id = $1`
	return r.scanFlag(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresFlagRepository) GetByName(ctx context.Context, name string) (*models.FeatureFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM feature_flags WHERE name = $1`
	return r.scanFlag(r.db.QueryRowContext(ctx, query, name))
}

func (r *postgresFlagRepository) List(ctx context.Context) ([]models.FeatureFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM feature_flags ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flags := make([]models.FeatureFlag, 0)
	for rows.Next() {
		var flag models.FeatureFlag
		if scanErr := rows.Scan(
			&flag.ID,
			&flag.Name,
			&flag.Enabled,
			&flag.Description,
			&flag.Metadata,
			&flag.CreatedAt,
			&flag.UpdatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		flags = append(flags, flag)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return flags, nil
}

func (r *postgresFlagRepository) Update(ctx context.Context, flag *models.FeatureFlag) error {
	query := `
		UPDATE feature_flags SET
			name = $1,
			description = $2,
			metadata = $3,
			updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		flag.Name,
		flag.Description,
		flag.Metadata,
		flag.ID,
	).Scan(&flag.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrFlagNotFound
		}
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" && pqErr.Constraint == "feature_flags_name_key" {
				return ErrFlagNameConflict
			}
		}
		return err
	}
	return nil
}

func (r *postgresFlagRepository) SetEnabled(ctx context.Context, id int, enabled bool) (*models.FeatureFlag, error) {
	query := `
		UPDATE feature_flags SET enabled = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + flagColumns

	return r.scanFlag(r.db.QueryRowContext(ctx, query, enabled, id))
}

func (r *postgresFlagRepository) Delete(ctx context.Context, id int) error {
	query := `DELETE FROM feature_flags WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrFlagNotFound)
}

func (r *postgresFlagRepository) Counts(ctx context.Context) (int, int, error) {
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE enabled) FROM feature_flags`

	var total, enabled int
	if err := r.db.QueryRowContext(ctx, query).Scan(&total, &enabled); err != nil {
		return 0, 0, err
	}
	return total, enabled, nil
}

func (r *postgresFlagRepository) scanFlag(row *sql.Row) (*models.FeatureFlag, error) {
	flag := &models.FeatureFlag{}
	err := row.Scan(
		&flag.ID,
		&flag.Name,
		&flag.Enabled,
		&flag.Description,
		&flag.Metadata,
		&flag.CreatedAt,
		&flag.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFlagNotFound
		}
		return nil, err
	}
	return flag, nil
}
