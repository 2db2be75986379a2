package handlers

import (
	"context"
	"io"

	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/services"
)

// Fn-field fakes so each test pins only the service calls it expects. An
// unexpected call hits a nil function and fails the test loudly.

type fakeAuthService struct {
	signupFn               func(ctx context.Context, input services.SignupInput) (*models.User, string, error)
	loginFn                func(ctx context.Context, input services.LoginInput) (*models.User, string, error)
	logoutFn               func(ctx context.Context, sessionID string) error
	verifyEmailFn          func(ctx context.Context, token string) error
	requestPasswordResetFn func(ctx context.Context, email string) error
	resetPasswordFn        func(ctx context.Context, token, newPassword string) error
}

var _ services.AuthService = (*fakeAuthService)(nil)

func (f *fakeAuthService) Signup(ctx context.Context, input services.SignupInput) (*models.User, string, error) {
	return f.signupFn(ctx, input)
}

func (f *fakeAuthService) Login(ctx context.Context, input services.LoginInput) (*models.User, string, error) {
	return f.loginFn(ctx, input)
}

func (f *fakeAuthService) Logout(ctx context.Context, sessionID string) error {
	return f.logoutFn(ctx, sessionID)
}

func (f *fakeAuthService) VerifyEmail(ctx context.Context, token string) error {
	return f.verifyEmailFn(ctx, token)
}

func (f *fakeAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	return f.requestPasswordResetFn(ctx, email)
}

func (f *fakeAuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	return f.resetPasswordFn(ctx, token, newPassword)
}

type fakeInvitationService struct {
	createFn  func(ctx context.Context, input services.CreateInvitationInput) (*models.Invitation, error)
	listFn    func(ctx context.Context) ([]models.Invitation, error)
	revokeFn  func(ctx context.Context, id string) error
	previewFn func(ctx context.Context, token string) (*models.Invitation, error)
	acceptFn  func(ctx context.Context, input services.AcceptInvitationInput) (*models.User, string, error)
}

var _ services.InvitationService = (*fakeInvitationService)(nil)

func (f *fakeInvitationService) Create(ctx context.Context, input services.CreateInvitationInput) (*models.Invitation, error) {
	return f.createFn(ctx, input)
}

func (f *fakeInvitationService) List(ctx context.Context) ([]models.Invitation, error) {
	return f.listFn(ctx)
}

func (f *fakeInvitationService) Revoke(ctx context.Context, id string) error {
	return f.revokeFn(ctx, id)
}

func (f *fakeInvitationService) Preview(ctx context.Context, token string) (*models.Invitation, error) {
	return f.previewFn(ctx, token)
}

func (f *fakeInvitationService) Accept(ctx context.Context, input services.AcceptInvitationInput) (*models.User, string, error) {
	return f.acceptFn(ctx, input)
}

// fakeUserService only ever backs PopulateImageURL in these tests, which the
// handlers call on every success path.
type fakeUserService struct {
	getProfileFn        func(ctx context.Context, userID int) (*models.User, error)
	updateProfileFn     func(ctx context.Context, userID int, input services.UpdateProfileInput) (*models.User, error)
	uploadAvatarFn      func(ctx context.Context, userID int, file io.Reader, contentType string) (*models.User, error)
	removeAvatarFn      func(ctx context.Context, userID int) (*models.User, error)
	getPreferencesFn    func(ctx context.Context, userID int) (*models.Preferences, error)
	updatePreferencesFn func(ctx context.Context, userID int, input services.UpdatePreferencesInput) (*models.Preferences, error)
	populateImageURLFn  func(user *models.User)
}

var _ services.UserService = (*fakeUserService)(nil)

func (f *fakeUserService) GetProfile(ctx context.Context, userID int) (*models.User, error) {
	return f.getProfileFn(ctx, userID)
}

func (f *fakeUserService) UpdateProfile(ctx context.Context, userID int, input services.UpdateProfileInput) (*models.User, error) {
	return f.updateProfileFn(ctx, userID, input)
}

func (f *fakeUserService) UploadAvatar(ctx context.Context, userID int, file io.Reader, contentType string) (*models.User, error) {
	return f.uploadAvatarFn(ctx, userID, file, contentType)
}

func (f *fakeUserService) RemoveAvatar(ctx context.Context, userID int) (*models.User, error) {
	return f.removeAvatarFn(ctx, userID)
}

func (f *fakeUserService) GetPreferences(ctx context.Context, userID int) (*models.Preferences, error) {
	return f.getPreferencesFn(ctx, userID)
}

func (f *fakeUserService) UpdatePreferences(ctx context.Context, userID int, input services.UpdatePreferencesInput) (*models.Preferences, error) {
	return f.updatePreferencesFn(ctx, userID, input)
}

func (f *fakeUserService) PopulateImageURL(user *models.User) {
	if f.populateImageURLFn != nil {
		f.populateImageURLFn(user)
	}
}

// fakeSessionService backs middleware.Authenticate on routes that need a
// signed-in caller. Only Authenticate matters here.
type fakeSessionService struct {
	authenticateFn func(ctx context.Context, token string) (*models.User, *models.Session, error)
}

var _ services.SessionService = (*fakeSessionService)(nil)

func (f *fakeSessionService) Issue(ctx context.Context, user *models.User, ip, userAgent string) (string, *models.Session, error) {
	return "", nil, nil
}

func (f *fakeSessionService) Authenticate(ctx context.Context, token string) (*models.User, *models.Session, error) {
	return f.authenticateFn(ctx, token)
}

func (f *fakeSessionService) Revoke(ctx context.Context, sessionID string) error { return nil }

func (f *fakeSessionService) RevokeAllForUser(ctx context.Context, userID int) (int64, error) {
	return 0, nil
}

func (f *fakeSessionService) RevokeOthers(ctx context.Context, userID int, keepSessionID string) (int64, error) {
	return 0, nil
}

func (f *fakeSessionService) ListForUser(ctx context.Context, userID int) ([]models.Session, error) {
	return nil, nil
}

// sessionFor authenticates the bearer token "valid-token" as the given user.
func sessionFor(user *models.User) *fakeSessionService {
	return &fakeSessionService{
		authenticateFn: func(ctx context.Context, token string) (*models.User, *models.Session, error) {
			if token != "valid-token" {
				return nil, nil, services.ErrSessionInvalid
			}
			return user, &models.Session{ID: "sess-1", UserID: user.ID}, nil
		},
	}
}

func adminUser() *models.User {
	return &models.User{
		ID:            1,
		Name:          "Avery Chen",
		Email:         "avery@example.com",
		Role:          models.RoleAdmin,
		EmailVerified: true,
		Locale:        "en",
	}
}

func memberUser() *models.User {
	return &models.User{
		ID:            2,
		Name:          "Riley Moss",
		Email:         "riley@example.com",
		Role:          models.RoleMember,
		EmailVerified: true,
		Locale:        "en",
	}
}
