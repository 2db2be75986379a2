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
	"github.com/croftbase/member-console/oauth"
	"github.com/croftbase/member-console/repositories"
)

const oauthStateTTL = 10 * time.Minute

var ErrUnknownProvider = errors.New("unknown oauth provider")

type OAuthService interface {
	// Providers lists the configured provider names.
	Providers() []string

	// Begin returns the provider's consent URL with a fresh state token. An
	// optional invitation token rides along inside the state payload so the
	// callback can apply the invited role.
	Begin(ctx context.Context, provider, invitationToken string) (string, error)

	// Callback redeems the state, exchanges the code and signs the user in,
	// creating or linking the account as needed.
	Callback(ctx context.Context, input CallbackInput) (*models.User, string, error)
}

// oauthStatePayload is the JSON stored with oauth-state rows. The state rows
// live in the verifications table so they survive restarts and can only be
// redeemed once.
type oauthStatePayload struct {
	Invitation string `json:"invitation,omitempty"`
}

type CallbackInput struct {
	Provider  string
	Code      string
	State     string
	IP        string
	UserAgent string
}

type oauthService struct {
	providers        map[string]oauth.Provider
	userRepo         repositories.UserRepository
	accountRepo      repositories.AccountRepository
	verificationRepo repositories.VerificationRepository
	preferenceRepo   repositories.PreferenceRepository
	sessions         SessionService
	mailer           EmailSender
	publisher        events.Publisher
	logger           *slog.Logger
}

func NewOAuthService(
	providers map[string]oauth.Provider,
	userRepo repositories.UserRepository,
	accountRepo repositories.AccountRepository,
	verificationRepo repositories.VerificationRepository,
	preferenceRepo repositories.PreferenceRepository,
	sessions SessionService,
	mailer EmailSender,
	publisher events.Publisher,
	logger *slog.Logger,
) OAuthService {
	return &oauthService{
		providers:        providers,
		userRepo:         userRepo,
		accountRepo:      accountRepo,
		verificationRepo: verificationRepo,
		preferenceRepo:   preferenceRepo,
		sessions:         sessions,
		mailer:           mailer,
		publisher:        publisher,
		logger:           logger,
	}
}

func (s *oauthService) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

func (s *oauthService) Begin(ctx context.Context, provider, invitationToken string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}

	payload := oauthStatePayload{Invitation: invitationToken}
	verification, rawState, err := newVerification(models.ScopeOAuthState, provider, payload, oauthStateTTL)
	if err != nil {
		return "", err
	}
	if err := s.verificationRepo.Create(ctx, verification); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}

	return p.AuthCodeURL(rawState), nil
}

func (s *oauthService) Callback(ctx context.Context, input CallbackInput) (*models.User, string, error) {
	p, ok := s.providers[input.Provider]
	if !ok {
		return nil, "", ErrUnknownProvider
	}

	verification, err := s.verificationRepo.ConsumeByTokenHash(ctx, hashToken(input.State))
	if err != nil {
		if errors.Is(err, repositories.ErrVerificationNotFound) {
			return nil, "", ErrAuthenticationFailed
		}
		return nil, "", fmt.Errorf("failed to consume oauth state: %w", err)
	}
	if verification.Identifier != models.ScopeOAuthState+":"+input.Provider || verification.Expired(time.Now()) {
		return nil, "", ErrAuthenticationFailed
	}

	var state oauthStatePayload
	if len(verification.Value) > 0 {
		if err := json.Unmarshal(verification.Value, &state); err != nil {
			s.logger.Warn("malformed oauth state payload",
				slog.String("provider", input.Provider),
				slog.Any("error", err),
			)
		}
	}

	token, err := p.Exchange(ctx, input.Code)
	if err != nil {
		s.logger.Warn("oauth code exchange failed",
			slog.String("provider", input.Provider),
			slog.Any("error", err),
		)
		return nil, "", ErrAuthenticationFailed
	}

	info, err := p.UserInfo(ctx, token)
	if err != nil {
		s.logger.Warn("oauth user info failed",
			slog.String("provider", input.Provider),
			slog.Any("error", err),
		)
		return nil, "", ErrAuthenticationFailed
	}

	user, err := s.resolveUser(ctx, input.Provider, info, state.Invitation)
	if err != nil {
		return nil, "", err
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

// resolveUser finds the user behind a provider identity. Known account rows
// win; otherwise an existing user with the same email gets the account
// linked, and as a last resort a fresh user is provisioned.
func (s *oauthService) resolveUser(ctx context.Context, provider string, info *oauth.UserInfo, invitationToken string) (*models.User, error) {
	account, err := s.accountRepo.GetByProvider(ctx, provider, info.ProviderAccountID)
	if err == nil {
		user, err := s.userRepo.GetByID(ctx, account.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load linked user: %w", err)
		}
		return user, nil
	}
	if !errors.Is(err, repositories.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	email, err := normalizeEmail(info.Email)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		// Same address, new provider. Linking hands control of an existing
		// password account to the provider identity, so it needs the
		// provider to vouch for the address.
		if !info.EmailVerified {
			return nil, ErrEmailTaken
		}
	case errors.Is(err, repositories.ErrUserNotFound):
		user, err = s.provisionUser(ctx, email, info, invitationToken)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}

	if err := s.accountRepo.Create(ctx, &models.Account{
		UserID:            user.ID,
		Provider:          provider,
		ProviderAccountID: info.ProviderAccountID,
	}); err != nil && !errors.Is(err, repositories.ErrAccountConflict) {
		return nil, fmt.Errorf("failed to link account: %w", err)
	}

	if info.EmailVerified && !user.EmailVerified {
		if err := s.userRepo.SetEmailVerified(ctx, user.ID, true); err != nil {
			return nil, fmt.Errorf("failed to mark email verified: %w", err)
		}
		user.EmailVerified = true
	}

	return user, nil
}

func (s *oauthService) provisionUser(ctx context.Context, email string, info *oauth.UserInfo, invitationToken string) (*models.User, error) {
	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	role := models.RoleMember
	invitation := s.pendingInvitation(ctx, email, invitationToken)
	if invitation != nil {
		var payload models.InvitationPayload
		if err := json.Unmarshal(invitation.Value, &payload); err == nil {
			role = payload.Role
		}
	}

	user := &models.User{
		Name:          name,
		Email:         email,
		Role:          role,
		EmailVerified: info.EmailVerified || invitation != nil,
		Locale:        "en",
	}
	if info.AvatarURL != "" {
		avatar := info.AvatarURL
		user.Image = &avatar
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrUserEmailConflict) {
			// Lost a race with a concurrent signup for the same address.
			return s.userRepo.GetByEmail(ctx, email)
		}
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	if invitation != nil {
		// The invited role is on the account now, burn the token.
		if _, err := s.verificationRepo.ConsumeByTokenHash(ctx, invitation.TokenHash); err != nil {
			s.logger.Warn("failed to consume invitation during oauth signup",
				slog.String("verification_id", invitation.ID),
				slog.Any("error", err),
			)
		}
		s.publisher.Publish("invitation.accepted", map[string]interface{}{
			"email": user.Email,
			"role":  user.Role,
			"via":   "oauth",
		})
	}

	s.publisher.Publish("user.created", map[string]interface{}{
		"id":    user.ID,
		"email": user.Email,
		"role":  user.Role,
		"via":   "oauth",
	})

	go s.runSideEffects(user)

	return user, nil
}

// pendingInvitation validates an invitation token carried through the oauth
// state. A token that is missing, expired or issued for a different address
// is ignored rather than failing the whole sign-in.
func (s *oauthService) pendingInvitation(ctx context.Context, email, invitationToken string) *models.Verification {
	if invitationToken == "" {
		return nil
	}

	verification, err := s.verificationRepo.GetByTokenHash(ctx, hashToken(invitationToken))
	if err != nil {
		s.logger.Warn("oauth signup carried an unknown invitation token", slog.Any("error", err))
		return nil
	}
	if verification.Identifier != models.ScopeInvitation+":"+email || verification.Expired(time.Now()) {
		s.logger.Warn("oauth signup carried a stale invitation token",
			slog.String("identifier", verification.Identifier),
		)
		return nil
	}
	return verification
}

func (s *oauthService) runSideEffects(user *models.User) {
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
