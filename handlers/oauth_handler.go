package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/croftbase/member-console/middleware"
	"github.com/croftbase/member-console/services"
	"github.com/go-chi/chi/v5"
)

// OAuthHandler drives the browser round trip to external identity
// providers. Success and user-facing failures land back on the frontend,
// with the session token carried in the URL fragment so it stays out of
// server logs.
type OAuthHandler struct {
	oauthService services.OAuthService
	publicURL    string
}

func NewOAuthHandler(oauthService services.OAuthService, publicURL string) *OAuthHandler {
	return &OAuthHandler{
		oauthService: oauthService,
		publicURL:    publicURL,
	}
}

// Providers godoc
//
//	@Summary		List sign-in providers
//	@Description	Names the configured OAuth providers
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	jsonResponse	"providers"
//	@Router			/auth/oauth [get]
func (h *OAuthHandler) Providers(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, jsonResponse{
		"providers": h.oauthService.Providers(),
	})
}

// Begin godoc
//
//	@Summary		Start an OAuth sign-in
//	@Description	Redirects to the provider's consent screen. An optional invitation token is carried through the state and applied on signup.
//	@Tags			Auth
//	@Param			provider	path	string	true	"provider name"
//	@Param			invitation	query	string	false	"invitation token"
//	@Success		302
//	@Failure		404	{object}	ErrorResponse	"unknown provider"
//	@Router			/auth/oauth/{provider} [get]
func (h *OAuthHandler) Begin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	consentURL, err := h.oauthService.Begin(r.Context(), provider, r.URL.Query().Get("invitation"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	http.Redirect(w, r, consentURL, http.StatusFound)
}

// Callback godoc
//
//	@Summary		Complete an OAuth sign-in
//	@Description	Redeems the state, exchanges the code and redirects back to the app with a session token in the URL fragment
//	@Tags			Auth
//	@Param			provider	path	string	true	"provider name"
//	@Param			code		query	string	true	"authorization code"
//	@Param			state		query	string	true	"state token"
//	@Success		302
//	@Failure		404	{object}	ErrorResponse	"unknown provider"
//	@Router			/auth/oauth/{provider}/callback [get]
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	// The provider reports consent-screen denials as an error parameter.
	if errCode := r.URL.Query().Get("error"); errCode != "" {
		h.redirectError(w, r, errCode)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		h.redirectError(w, r, "invalid_callback")
		return
	}

	_, token, err := h.oauthService.Callback(r.Context(), services.CallbackInput{
		Provider:  provider,
		Code:      code,
		State:     state,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownProvider):
			notFoundResponse(w, r)
		case errors.Is(err, services.ErrUserBanned):
			h.redirectError(w, r, "banned")
		case errors.Is(err, services.ErrEmailTaken):
			h.redirectError(w, r, "email_in_use")
		case errors.Is(err, services.ErrAuthenticationFailed):
			h.redirectError(w, r, "oauth_failed")
		default:
			serverErrorResponse(w, r, err)
		}
		return
	}

	http.Redirect(w, r, h.publicURL+"/oauth/complete#token="+url.QueryEscape(token), http.StatusFound)
}

func (h *OAuthHandler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.publicURL+"/login?error="+url.QueryEscape(code), http.StatusFound)
}
