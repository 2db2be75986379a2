package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/croftbase/member-console/models"
	"github.com/lib/pq"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionUserInvalid = errors.New("session user invalid")
)

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error

	// DeleteByUserID revokes every session of a user and returns the count.
	DeleteByUserID(ctx context.Context, userID int) (int64, error)

	// DeleteByUserIDExcept revokes every session of a user but the given one.
	DeleteByUserIDExcept(ctx context.Context, userID int, keepID string) (int64, error)

	ListByUserID(ctx context.Context, userID int) ([]models.Session, error)
	DeleteExpired(ctx context.Context) (int64, error)
	CountActive(ctx context.Context) (int, error)
}

type postgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(db *sql.DB) SessionRepository {
	return &postgresSessionRepository{db: db}
}

func (r *postgresSessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, ip, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		session.ID,
		session.UserID,
		session.IP,
		session.UserAgent,
		session.ExpiresAt,
	).Scan(&session.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23503" && pqErr.Constraint == "sessions_user_id_fkey" {
				return ErrSessionUserInvalid
			}
		}
		return err
	}
	return nil
}

func (r *postgresSessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, user_id, ip, user_agent, expires_at, created_at
		FROM sessions
		WHERE id = $1`

	session := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.IP,
		&session.UserAgent,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

func (r *postgresSessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrSessionNotFound)
}

func (r *postgresSessionRepository) DeleteByUserID(ctx context.Context, userID int) (int64, error) {
	query := `DELETE FROM sessions WHERE user_id = $1`

	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *postgresSessionRepository) DeleteByUserIDExcept(ctx context.Context, userID int, keepID string) (int64, error) {
	query := `DELETE FROM sessions WHERE user_id = $1 AND id <> $2`

	result, err := r.db.ExecContext(ctx, query, userID, keepID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *postgresSessionRepository) ListByUserID(ctx context.Context, userID int) ([]models.Session, error) {
	query := `
		SELECT id, user_id, ip, user_agent, expires_at, created_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		var session models.Session
		if scanErr := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.IP,
			&session.UserAgent,
			&session.ExpiresAt,
			&session.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, session)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *postgresSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= NOW()`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *postgresSessionRepository) CountActive(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE expires_at > NOW()`

	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
