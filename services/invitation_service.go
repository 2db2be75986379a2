package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/croftbase/member-console/events"
	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/repositories"
	"golang.org/x/crypto/bcrypt"
)

const invitationTTL = 7 * 24 * time.Hour

var (
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvalidRole        = errors.New("invalid role")
)

type InvitationService interface {
	// Create issues an invitation for an email that has no account yet.
	// A previous pending invitation for the same address is superseded.
	Create(ctx context.Context, input CreateInvitationInput) (*models.Invitation, error)

	// List returns pending invitations, newest first.
	List(ctx context.Context) ([]models.Invitation, error)

	Revoke(ctx context.Context, id string) error

	// Preview resolves a raw token without consuming it, so the signup form
	// can show who invited whom.
	Preview(ctx context.Context, token string) (*models.Invitation, error)

	// Accept redeems the token and creates the account with the invited
	// role. The token is burned before the session is issued, so a second
	// accept of the same link fails.
	Accept(ctx context.Context, input AcceptInvitationInput) (*models.User, string, error)
}

type CreateInvitationInput struct {
	Email     string
	Role      models.UserRole
	InviterID int
}

type AcceptInvitationInput struct {
	Token     string
	Name      string
	Password  string
	Locale    string
	IP        string
	UserAgent string
}

type invitationService struct {
	verificationRepo repositories.VerificationRepository
	userRepo         repositories.UserRepository
	preferenceRepo   repositories.PreferenceRepository
	sessions         SessionService
	mailer           EmailSender
	publisher        events.Publisher
	logger           *slog.Logger
}

func NewInvitationService(
	verificationRepo repositories.VerificationRepository,
	userRepo repositories.UserRepository,
	preferenceRepo repositories.PreferenceRepository,
	sessions SessionService,
	mailer EmailSender,
	publisher events.Publisher,
	logger *slog.Logger,
) InvitationService {
	return &invitationService{
		verificationRepo: verificationRepo,
		userRepo:         userRepo,
		preferenceRepo:   preferenceRepo,
		sessions:         sessions,
		mailer:           mailer,
		publisher:        publisher,
		logger:           logger,
	}
}

func (s *invitationService) Create(ctx context.Context, input CreateInvitationInput) (*models.Invitation, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, ErrEmailRequired
	}
	if !models.ValidRole(input.Role) {
		return nil, ErrInvalidRole
	}

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check email availability: %w", err)
	}

	inviter, err := s.userRepo.GetByID(ctx, input.InviterID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load inviter: %w", err)
	}

	// Re-inviting an address replaces the outstanding invitation.
	identifier := models.ScopeInvitation + ":" + email
	if _, err := s.verificationRepo.DeleteByIdentifier(ctx, identifier); err != nil {
		return nil, fmt.Errorf("failed to supersede previous invitation: %w", err)
	}

	payload := models.InvitationPayload{
		Email:       email,
		Role:        input.Role,
		InviterID:   inviter.ID,
		InviterName: inviter.Name,
		InvitedAt:   time.Now().UTC(),
	}
	verification, rawToken, err := newVerification(models.ScopeInvitation, email, payload, invitationTTL)
	if err != nil {
		return nil, err
	}
	if err := s.verificationRepo.Create(ctx, verification); err != nil {
		return nil, fmt.Errorf("failed to store invitation: %w", err)
	}

	s.publisher.Publish("invitation.created", map[string]interface{}{
		"email":      email,
		"role":       input.Role,
		"inviter_id": inviter.ID,
	})

	go func() {
		if err := s.mailer.SendInvitationEmail(email, inviter.Name, input.Role, rawToken); err != nil {
			s.logger.Error("failed to send invitation email",
				slog.String("email", email),
				slog.Any("error", err),
			)
		}
	}()

	return invitationView(verification, payload), nil
}

func (s *invitationService) List(ctx context.Context) ([]models.Invitation, error) {
	rows, err := s.verificationRepo.ListByIdentifierPrefix(ctx, models.ScopeInvitation+":")
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	invitations := make([]models.Invitation, 0, len(rows))
	for _, row := range rows {
		var payload models.InvitationPayload
		if err := json.Unmarshal(row.Value, &payload); err != nil {
			s.logger.Warn("skipping invitation with malformed payload",
				slog.String("id", row.ID),
				slog.Any("error", err),
			)
			continue
		}
		invitations = append(invitations, *invitationView(row, payload))
	}
	return invitations, nil
}

func (s *invitationService) Revoke(ctx context.Context, id string) error {
	if err := s.verificationRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrVerificationNotFound) {
			return ErrInvitationNotFound
		}
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}

	s.publisher.Publish("invitation.revoked", map[string]interface{}{"id": id})
	return nil
}

func (s *invitationService) Preview(ctx context.Context, token string) (*models.Invitation, error) {
	verification, err := s.verificationRepo.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, repositories.ErrVerificationNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}
	if !strings.HasPrefix(verification.Identifier, models.ScopeInvitation+":") {
		return nil, ErrInvitationNotFound
	}
	if verification.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}

	var payload models.InvitationPayload
	if err := json.Unmarshal(verification.Value, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode invitation payload: %w", err)
	}
	return invitationView(verification, payload), nil
}

func (s *invitationService) Accept(ctx context.Context, input AcceptInvitationInput) (*models.User, string, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, "", ErrNameRequired
	}
	if len(input.Password) < 8 {
		return nil, "", ErrPasswordTooShort
	}

	verification, err := s.verificationRepo.GetByTokenHash(ctx, hashToken(input.Token))
	if err != nil {
		if errors.Is(err, repositories.ErrVerificationNotFound) {
			return nil, "", ErrTokenInvalid
		}
		return nil, "", fmt.Errorf("failed to load invitation: %w", err)
	}
	if !strings.HasPrefix(verification.Identifier, models.ScopeInvitation+":") {
		return nil, "", ErrTokenInvalid
	}
	if verification.Expired(time.Now()) {
		return nil, "", ErrTokenExpired
	}

	var payload models.InvitationPayload
	if err := json.Unmarshal(verification.Value, &payload); err != nil {
		return nil, "", fmt.Errorf("failed to decode invitation payload: %w", err)
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

	// The invited role must be on the account before any session exists.
	// Clicking the emailed link proves ownership of the address, so the
	// account starts out verified. Concurrent accepts of the same link
	// collapse here on the unique email.
	user := &models.User{
		Name:          name,
		Email:         payload.Email,
		PasswordHash:  &passwordHash,
		Role:          payload.Role,
		EmailVerified: true,
		Locale:        locale,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrUserEmailConflict) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", fmt.Errorf("failed to create invited user: %w", err)
	}

	// Burn the token before issuing the session. If it vanished in the
	// meantime the account already exists, so only log it.
	if _, err := s.verificationRepo.ConsumeByTokenHash(ctx, verification.TokenHash); err != nil {
		s.logger.Warn("invitation token gone after account creation",
			slog.Int("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	sessionToken, _, err := s.sessions.Issue(ctx, user, input.IP, input.UserAgent)
	if err != nil {
		return nil, "", err
	}

	s.publisher.Publish("invitation.accepted", map[string]interface{}{
		"user_id":    user.ID,
		"email":      user.Email,
		"role":       user.Role,
		"inviter_id": payload.InviterID,
	})

	go s.runSideEffects(user)

	return user, sessionToken, nil
}

// runSideEffects seeds preferences and sends the welcome email after an
// accepted invitation. Neither failure affects the signed-up user.
func (s *invitationService) runSideEffects(user *models.User) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prefs := models.DefaultPreferences(user.ID, user.Locale)
	if err := s.preferenceRepo.Upsert(ctx, &prefs); err != nil {
		s.logger.Error("failed to seed preferences",
			slog.Int("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	if err := s.mailer.SendWelcomeEmail(user.Email, user.Name); err != nil {
		s.logger.Error("failed to send welcome email",
			slog.Int("user_id", user.ID),
			slog.Any("error", err),
		)
	}
}

func invitationView(v *models.Verification, payload models.InvitationPayload) *models.Invitation {
	return &models.Invitation{
		ID:          v.ID,
		Email:       payload.Email,
		Role:        payload.Role,
		InviterID:   payload.InviterID,
		InviterName: payload.InviterName,
		ExpiresAt:   v.ExpiresAt,
		CreatedAt:   v.CreatedAt,
	}
}
