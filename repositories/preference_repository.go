package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/croftbase/member-console/models"
	"github.com/lib/pq"
)

var (
	ErrPreferencesNotFound    = errors.New("preferences not found")
	ErrPreferencesUserInvalid = errors.New("preferences user invalid")
)

type PreferenceRepository interface {
	GetByUserID(ctx context.Context, userID int) (*models.Preferences, error)
	// Upsert inserts the row or overwrites an existing one for the user.
	Upsert(ctx context.Context, prefs *models.Preferences) error
}

type postgresPreferenceRepository struct {
	db *sql.DB
}

func NewPostgresPreferenceRepository(db *sql.DB) PreferenceRepository {
	return &postgresPreferenceRepository{db: db}
}

func (r *postgresPreferenceRepository) GetByUserID(ctx context.Context, userID int) (*models.Preferences, error) {
	query := `
		SELECT user_id, theme, locale, email_notifications, digest, updated_at
		FROM user_preferences
		WHERE user_id = $1`

	prefs := &models.Preferences{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&prefs.UserID,
		&prefs.Theme,
		&prefs.Locale,
		&prefs.EmailNotifications,
		&prefs.Digest,
		&prefs.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPreferencesNotFound
		}
		return nil, err
	}
	return prefs, nil
}

func (r *postgresPreferenceRepository) Upsert(ctx context.Context, prefs *models.Preferences) error {
	query := `
		INSERT INTO user_preferences (user_id, theme, locale, email_notifications, digest)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			theme = EXCLUDED.theme,
			locale = EXCLUDED.locale,
			email_notifications = EXCLUDED.email_notifications,
			digest = EXCLUDED.digest,
			updated_at = NOW()
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		prefs.UserID,
		prefs.Theme,
		prefs.Locale,
		prefs.EmailNotifications,
		prefs.Digest,
	).Scan(&prefs.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23503" && pqErr.Constraint == "user_preferences_user_id_fkey" {
				return ErrPreferencesUserInvalid
			}
		}
		return err
	}
	return nil
}
