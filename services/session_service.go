package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/repositories"
	"github.com/golang-jwt/jwt/v4"
)

const sessionTTL = 7 * 24 * time.Hour

var ErrSessionInvalid = errors.New("session is invalid or expired")

// SessionService issues and validates bearer tokens. A token is a signed JWT
// carrying a session id; the session row in the database stays authoritative,
// so revoking the row kills the token before its expiry.
type SessionService interface {
	// Issue creates a session for the user and returns the signed token.
	// Any previous sessions of the user are superseded.
	Issue(ctx context.Context, user *models.User, ip, userAgent string) (string, *models.Session, error)

	// Authenticate resolves a bearer token to its user and session.
	Authenticate(ctx context.Context, token string) (*models.User, *models.Session, error)

	Revoke(ctx context.Context, sessionID string) error
	RevokeAllForUser(ctx context.Context, userID int) (int64, error)

	// RevokeOthers keeps the caller's current session and drops the rest.
	RevokeOthers(ctx context.Context, userID int, keepSessionID string) (int64, error)

	ListForUser(ctx context.Context, userID int) ([]models.Session, error)
}

type sessionClaims struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

type sessionService struct {
	sessionRepo repositories.SessionRepository
	userRepo    repositories.UserRepository
	secret      []byte
}

func NewSessionService(sessionRepo repositories.SessionRepository, userRepo repositories.UserRepository, secret string) SessionService {
	return &sessionService{
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		secret:      []byte(secret),
	}
}

func (s *sessionService) Issue(ctx context.Context, user *models.User, ip, userAgent string) (string, *models.Session, error) {
	if _, err := s.sessionRepo.DeleteByUserID(ctx, user.ID); err != nil {
		return "", nil, fmt.Errorf("failed to supersede previous sessions: %w", err)
	}

	now := time.Now()
	session := &models.Session{
		ID:        newID(),
		UserID:    user.ID,
		IP:        ip,
		UserAgent: userAgent,
		ExpiresAt: now.Add(sessionTTL),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}

	claims := sessionClaims{
		SessionID: session.ID,
		Role:      string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return token, session, nil
}

func (s *sessionService) Authenticate(ctx context.Context, token string) (*models.User, *models.Session, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, nil, ErrSessionInvalid
	}

	session, err := s.sessionRepo.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session.Expired(time.Now()) {
		return nil, nil, ErrSessionInvalid
	}

	user, err := s.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, fmt.Errorf("failed to load session user: %w", err)
	}
	if user.Banned {
		return nil, nil, ErrUserBanned
	}

	return user, session, nil
}

func (s *sessionService) Revoke(ctx context.Context, sessionID string) error {
	err := s.sessionRepo.Delete(ctx, sessionID)
	if err != nil && !errors.Is(err, repositories.ErrSessionNotFound) {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (s *sessionService) RevokeAllForUser(ctx context.Context, userID int) (int64, error) {
	count, err := s.sessionRepo.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return count, nil
}

func (s *sessionService) RevokeOthers(ctx context.Context, userID int, keepSessionID string) (int64, error) {
	count, err := s.sessionRepo.DeleteByUserIDExcept(ctx, userID, keepSessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return count, nil
}

func (s *sessionService) ListForUser(ctx context.Context, userID int) ([]models.Session, error) {
	sessions, err := s.sessionRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}
