package oauth

import (
	"context"

	"golang.org/x/oauth2"
)

// UserInfo is the provider-agnostic identity returned after the code
// exchange. EmailVerified reports whether the provider vouches for the
// address.
type UserInfo struct {
	ProviderAccountID string
	Email             string
	EmailVerified     bool
	Name              string
	AvatarURL         string
}

// Provider is one configured external identity provider.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	UserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error)
}
