package services

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/oauth"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeProvider struct {
	name       string
	info       *oauth.UserInfo
	exchangeFn func(ctx context.Context, code string) (*oauth2.Token, error)
	userInfoFn func(ctx context.Context, token *oauth2.Token) (*oauth.UserInfo, error)
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.test/consent?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if p.exchangeFn != nil {
		return p.exchangeFn(ctx, code)
	}
	return &oauth2.Token{AccessToken: "provider-access-token"}, nil
}

func (p *fakeProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*oauth.UserInfo, error) {
	if p.userInfoFn != nil {
		return p.userInfoFn(ctx, token)
	}
	return p.info, nil
}

type oauthFixture struct {
	provider    *fakeProvider
	users       *fakeUserRepo
	accounts    *fakeAccountRepo
	tokens      *fakeVerificationRepo
	prefs       *fakePreferenceRepo
	sessionRepo *fakeSessionRepo
	sessions    SessionService
	mailer      *fakeMailer
	bus         *recordPublisher
	svc         OAuthService
}

func newOAuthFixture(info *oauth.UserInfo) *oauthFixture {
	f := &oauthFixture{
		provider:    &fakeProvider{name: "acme", info: info},
		users:       newFakeUserRepo(),
		accounts:    newFakeAccountRepo(),
		tokens:      newFakeVerificationRepo(),
		prefs:       newFakePreferenceRepo(),
		sessionRepo: newFakeSessionRepo(),
		mailer:      newFakeMailer(),
		bus:         &recordPublisher{},
	}
	f.sessions = NewSessionService(f.sessionRepo, f.users, "test-secret")
	f.svc = NewOAuthService(
		map[string]oauth.Provider{"acme": f.provider},
		f.users, f.accounts, f.tokens, f.prefs,
		f.sessions, f.mailer, f.bus, testLogger(),
	)
	return f
}

// begin starts the flow and returns the raw state token embedded in the
// consent URL.
func (f *oauthFixture) begin(t *testing.T, invitationToken string) string {
	t.Helper()
	consent, err := f.svc.Begin(context.Background(), "acme", invitationToken)
	require.NoError(t, err)
	u, err := url.Parse(consent)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func rileyInfo() *oauth.UserInfo {
	return &oauth.UserInfo{
		ProviderAccountID: "acct-1",
		Email:             "Riley@Example.com",
		EmailVerified:     true,
		Name:              "Riley Moss",
		AvatarURL:         "https://avatars.test/riley.png",
	}
}

func TestOAuthProviders(t *testing.T) {
	t.Parallel()

	f := newOAuthFixture(rileyInfo())
	require.Equal(t, []string{"acme"}, f.svc.Providers())
}

func TestOAuthBegin(t *testing.T) {
	t.Parallel()

	t.Run("returns a consent url carrying a fresh state", func(t *testing.T) {
		t.Parallel()
		f := newOAuthFixture(rileyInfo())

		state := f.begin(t, "")
		require.NotEmpty(t, state)
		require.Equal(t, 1, f.tokens.count())
	})

	t.Run("rejects an unknown provider", func(t *testing.T) {
		t.Parallel()
		f := newOAuthFixture(rileyInfo())

		_, err := f.svc.Begin(context.Background(), "missing", "")
		require.ErrorIs(t, err, ErrUnknownProvider)
	})
}

func TestOAuthCallback(t *testing.T) {
	t.Parallel()

	t.Run("provisions a member on first sign-in", func(t *testing.T) {
		t.Parallel()
		f := newOAuthFixture(rileyInfo())
		state := f.begin(t, "")

		user, sessionToken, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    state,
		})
		require.NoError(t, err)
		require.Equal(t, "riley@example.com", user.Email)
		require.Equal(t, models.RoleMember, user.Role)
		require.True(t, user.EmailVerified)
		require.NotNil(t, user.Image)
		require.Equal(t, "https://avatars.test/riley.png", *user.Image)

		authed, _, err := f.sessions.Authenticate(context.Background(), sessionToken)
		require.NoError(t, err)
		require.Equal(t, user.ID, authed.ID)

		account, err := f.accounts.GetByProvider(context.Background(), "acme", "acct-1")
		require.NoError(t, err)
		require.Equal(t, user.ID, account.UserID)

		prefs := waitFor(t, f.prefs.upserted, "seeded preferences")
		require.Equal(t, user.ID, prefs.UserID)
		welcome := waitFor(t, f.mailer.welcome, "welcome email")
		require.Equal(t, "riley@example.com", welcome)

		require.True(t, f.bus.has("user.created"))
	})

	t.Run("derives a name from the address when the provider sends none", func(t *testing.T) {
		t.Parallel()
		info := rileyInfo()
		info.Name = "  "
		f := newOAuthFixture(info)
		state := f.begin(t, "")

		user, _, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    state,
		})
		require.NoError(t, err)
		require.Equal(t, "riley", user.Name)
	})

	t.Run("rejects a replayed state", func(t *testing.T) {
		t.Parallel()
		f := newOAuthFixture(rileyInfo())
		state := f.begin(t, "")

		_, _, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    state,
		})
		require.NoError(t, err)

		_, _, err = f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    state,
		})
		require.ErrorIs(t, err, ErrAuthenticationFailed)
	})

	t.Run("rejects an unknown state", func(t *testing.T) {
		t.Parallel()
		f := newOAuthFixture(rileyInfo())

		_, _, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    "bogus-state",
		})
		require.ErrorIs(t, err, ErrAuthenticationFailed)
	})

	t.Run("rejects an expired state", func(t *testing.T) {
		t.Parallel()
		f := newOAuthFixture(rileyInfo())
		state := f.begin(t, "")
		f.tokens.expireAll()

		_, _, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    state,
		})
		require.ErrorIs(t, err, ErrAuthenticationFailed)
	})

	t.Run("rejects an unknown provider", func(t *testing.T) {
		t.Parallel()
		f := newOAuthFixture(rileyInfo())

		_, _, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "missing",
			Code:     "code-1",
			State:    "whatever",
		})
		require.ErrorIs(t, err, ErrUnknownProvider)
	})

	t.Run("fails when the code exchange fails", func(t *testing.T) {
		t.Parallel()
		f := newOAuthFixture(rileyInfo())
		f.provider.exchangeFn = func(ctx context.Context, code string) (*oauth2.Token, error) {
			return nil, errors.New("provider is down")
		}
		state := f.begin(t, "")

		_, _, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    state,
		})
		require.ErrorIs(t, err, ErrAuthenticationFailed)
	})

	t.Run("fails when the identity has no usable address", func(t *testing.T) {
		t.Parallel()
		info := rileyInfo()
		info.Email = ""
		f := newOAuthFixture(info)
		state := f.begin(t, "")

		_, _, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    state,
		})
		require.ErrorIs(t, err, ErrAuthenticationFailed)
	})

	t.Run("signs a known account row straight in", func(t *testing.T) {
		t.Parallel()
		f := newOAuthFixture(rileyInfo())

		existing := &models.User{Name: "Riley Moss", Email: "riley@example.com", Role: models.RoleAdmin, EmailVerified: true}
		require.NoError(t, f.users.Create(context.Background(), existing))
		require.NoError(t, f.accounts.Create(context.Background(), &models.Account{
			UserID:            existing.ID,
			Provider:          "acme",
			ProviderAccountID: "acct-1",
		}))

		state := f.begin(t, "")
		user, _, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    state,
		})
		require.NoError(t, err)
		require.Equal(t, existing.ID, user.ID)
		require.Equal(t, models.RoleAdmin, user.Role)
		require.False(t, f.bus.has("user.created"))
	})

	t.Run("links a verified identity to an existing password account", func(t *testing.T) {
		t.Parallel()
		f := newOAuthFixture(rileyInfo())

		hash := "bcrypt-hash"
		existing := &models.User{Name: "Riley Moss", Email: "riley@example.com", PasswordHash: &hash, Role: models.RoleMember}
		require.NoError(t, f.users.Create(context.Background(), existing))

		state := f.begin(t, "")
		user, _, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    state,
		})
		require.NoError(t, err)
		require.Equal(t, existing.ID, user.ID)
		require.True(t, user.EmailVerified)

		account, err := f.accounts.GetByProvider(context.Background(), "acme", "acct-1")
		require.NoError(t, err)
		require.Equal(t, existing.ID, account.UserID)
		require.False(t, f.bus.has("user.created"))
	})

	t.Run("refuses to link when the provider cannot vouch for the address", func(t *testing.T) {
		t.Parallel()
		info := rileyInfo()
		info.EmailVerified = false
		f := newOAuthFixture(info)

		hash := "bcrypt-hash"
		require.NoError(t, f.users.Create(context.Background(), &models.User{
			Name: "Riley Moss", Email: "riley@example.com", PasswordHash: &hash, Role: models.RoleMember,
		}))

		state := f.begin(t, "")
		_, _, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    state,
		})
		require.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("rejects a banned user", func(t *testing.T) {
		t.Parallel()
		f := newOAuthFixture(rileyInfo())

		banned := &models.User{Name: "Riley Moss", Email: "riley@example.com", Role: models.RoleMember, Banned: true}
		require.NoError(t, f.users.Create(context.Background(), banned))
		require.NoError(t, f.accounts.Create(context.Background(), &models.Account{
			UserID:            banned.ID,
			Provider:          "acme",
			ProviderAccountID: "acct-1",
		}))

		state := f.begin(t, "")
		_, _, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    state,
		})
		require.ErrorIs(t, err, ErrUserBanned)
	})

	t.Run("applies the invited role carried through the state", func(t *testing.T) {
		t.Parallel()
		f := newOAuthFixture(rileyInfo())

		payload := models.InvitationPayload{
			Email:       "riley@example.com",
			Role:        models.RoleAdmin,
			InviterID:   1,
			InviterName: "Avery Chen",
			InvitedAt:   time.Now().UTC(),
		}
		invitation, rawInvitation, err := newVerification(models.ScopeInvitation, "riley@example.com", payload, 7*24*time.Hour)
		require.NoError(t, err)
		require.NoError(t, f.tokens.Create(context.Background(), invitation))

		state := f.begin(t, rawInvitation)
		user, _, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    state,
		})
		require.NoError(t, err)
		require.Equal(t, models.RoleAdmin, user.Role)
		require.True(t, user.EmailVerified)

		// Both the state and the invitation are burned.
		require.Zero(t, f.tokens.count())
		require.True(t, f.bus.has("invitation.accepted"))
		require.True(t, f.bus.has("user.created"))
	})

	t.Run("ignores an invitation issued for another address", func(t *testing.T) {
		t.Parallel()
		f := newOAuthFixture(rileyInfo())

		payload := models.InvitationPayload{Email: "someone-else@example.com", Role: models.RoleAdmin}
		invitation, rawInvitation, err := newVerification(models.ScopeInvitation, "someone-else@example.com", payload, 7*24*time.Hour)
		require.NoError(t, err)
		require.NoError(t, f.tokens.Create(context.Background(), invitation))

		state := f.begin(t, rawInvitation)
		user, _, err := f.svc.Callback(context.Background(), CallbackInput{
			Provider: "acme",
			Code:     "code-1",
			State:    state,
		})
		require.NoError(t, err)
		require.Equal(t, models.RoleMember, user.Role)

		// The mismatched invitation stays pending.
		require.Equal(t, 1, f.tokens.count())
	})
}
