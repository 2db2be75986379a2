package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/croftbase/member-console/events"
	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/repositories"
	"golang.org/x/crypto/bcrypt"
)

const (
	emailVerifyTTL   = 24 * time.Hour
	passwordResetTTL = 1 * time.Hour
)

var (
	ErrNameRequired  = errors.New("name is required")
	ErrEmailRequired = errors.New("a valid email is required")
)

type AuthService interface {
	Signup(ctx context.Context, input SignupInput) (*models.User, string, error)
	Login(ctx context.Context, input LoginInput) (*models.User, string, error)
	Logout(ctx context.Context, sessionID string) error
	VerifyEmail(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type SignupInput struct {
	Name      string
	Email     string
	Password  string
	Locale    string
	IP        string
	UserAgent string
}

type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// tokenValue is the JSON payload stored with email verification and
// password reset tokens.
type tokenValue struct {
	UserID int `json:"user_id"`
}

type authService struct {
	userRepo         repositories.UserRepository
	verificationRepo repositories.VerificationRepository
	preferenceRepo   repositories.PreferenceRepository
	sessions         SessionService
	mailer           EmailSender
	publisher        events.Publisher
	logger           *slog.Logger
}

func NewAuthService(
	userRepo repositories.UserRepository,
	verificationRepo repositories.VerificationRepository,
	preferenceRepo repositories.PreferenceRepository,
	sessions SessionService,
	mailer EmailSender,
	publisher events.Publisher,
	logger *slog.Logger,
) AuthService {
	return &authService{
		userRepo:         userRepo,
		verificationRepo: verificationRepo,
		preferenceRepo:   preferenceRepo,
		sessions:         sessions,
		mailer:           mailer,
		publisher:        publisher,
		logger:           logger,
	}
}

func (s *authService) Signup(ctx context.Context, input SignupInput) (*models.User, string, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, "", ErrNameRequired
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, "", ErrEmailRequired
	}
	if len(input.Password) < 8 {
		return nil, "", ErrPasswordTooShort
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}
	passwordHash := string(hashed)

	locale := input.Locale
	if locale == "" {
		locale = "en"
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: &passwordHash,
		Role:         models.RoleMember,
		Locale:       locale,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrUserEmailConflict) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	verification, rawToken, err := newVerification(models.ScopeEmailVerify, email, tokenValue{UserID: user.ID}, emailVerifyTTL)
	if err != nil {
		return nil, "", err
	}
	if err := s.verificationRepo.Create(ctx, verification); err != nil {
		return nil, "", fmt.Errorf("failed to store verification token: %w", err)
	}

	sessionToken, _, err := s.sessions.Issue(ctx, user, input.IP, input.UserAgent)
	if err != nil {
		return nil, "", err
	}

	s.publisher.Publish("user.created", map[string]interface{}{
		"id":    user.ID,
		"email": user.Email,
		"role":  user.Role,
		"via":   "signup",
	})

	go s.runSideEffects(user, rawToken)

	return user, sessionToken, nil
}

// runSideEffects seeds preferences and sends the verification email after a
// signup. Failures are logged and never surface to the caller.
func (s *authService) runSideEffects(user *models.User, verifyToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prefs := models.DefaultPreferences(user.ID, user.Locale)
	if err := s.preferenceRepo.Upsert(ctx, &prefs); err != nil {
		s.logger.Error("failed to seed preferences",
			slog.Int("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	if err := s.mailer.SendVerificationEmail(user.Email, user.Name, verifyToken); err != nil {
		s.logger.Error("failed to send verification email",
			slog.Int("user_id", user.ID),
			slog.Any("error", err),
		)
	}
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*models.User, string, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to find user by email: %w", err)
	}

	if user.PasswordHash == nil {
		// Provider-linked account without a password.
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if user.Banned {
		return nil, "", ErrUserBanned
	}

	sessionToken, _, err := s.sessions.Issue(ctx, user, input.IP, input.UserAgent)
	if err != nil {
		return nil, "", err
	}

	return user, sessionToken, nil
}

func (s *authService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID)
}

func (s *authService) VerifyEmail(ctx context.Context, token string) error {
	verification, err := s.verificationRepo.ConsumeByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, repositories.ErrVerificationNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("failed to consume verification token: %w", err)
	}
	if !strings.HasPrefix(verification.Identifier, models.ScopeEmailVerify+":") {
		return ErrTokenInvalid
	}
	if verification.Expired(time.Now()) {
		return ErrTokenExpired
	}

	var value tokenValue
	if err := json.Unmarshal(verification.Value, &value); err != nil {
		return fmt.Errorf("failed to decode verification payload: %w", err)
	}

	if err := s.userRepo.SetEmailVerified(ctx, value.UserID, true); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	return nil
}

func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil
	}

	user, err := s.userRepo.GetByEmail(ctx, normalized)
	if err != nil {
		// Do not reveal whether the address is registered.
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	identifier := models.ScopePasswordReset + ":" + normalized
	if _, err := s.verificationRepo.DeleteByIdentifier(ctx, identifier); err != nil {
		return fmt.Errorf("failed to clear previous reset tokens: %w", err)
	}

	verification, rawToken, err := newVerification(models.ScopePasswordReset, normalized, tokenValue{UserID: user.ID}, passwordResetTTL)
	if err != nil {
		return err
	}
	if err := s.verificationRepo.Create(ctx, verification); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	go func() {
		if err := s.mailer.SendPasswordResetEmail(user.Email, rawToken); err != nil {
			s.logger.Error("failed to send password reset email",
				slog.Int("user_id", user.ID),
				slog.Any("error", err),
			)
		}
	}()

	return nil
}

func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrPasswordTooShort
	}

	verification, err := s.verificationRepo.ConsumeByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, repositories.ErrVerificationNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	if !strings.HasPrefix(verification.Identifier, models.ScopePasswordReset+":") {
		return ErrTokenInvalid
	}
	if verification.Expired(time.Now()) {
		return ErrTokenExpired
	}

	var value tokenValue
	if err := json.Unmarshal(verification.Value, &value); err != nil {
		return fmt.Errorf("failed to decode reset payload: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, value.UserID, string(hashed)); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	// A reset invalidates every open session of the user.
	if _, err := s.sessions.RevokeAllForUser(ctx, value.UserID); err != nil {
		return err
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(email))
	if trimmed == "" {
		return "", ErrEmailRequired
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", ErrEmailRequired
	}
	return trimmed, nil
}
