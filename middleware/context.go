package middleware

import (
	"context"

	"github.com/croftbase/member-console/models"
)

type contextKey string

const (
	userContextKey    contextKey = "current_user"
	sessionContextKey contextKey = "current_session"
)

func withUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func withSession(ctx context.Context, session *models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// CurrentUser returns the authenticated user stored by Authenticate.
func CurrentUser(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok
}

// CurrentSession returns the session backing the request's bearer token.
func CurrentSession(ctx context.Context) (*models.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*models.Session)
	return session, ok
}
