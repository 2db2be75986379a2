package handlers

import (
	"errors"
	"net/http"

	"github.com/croftbase/member-console/middleware"
	"github.com/croftbase/member-console/services"
)

type AuthHandler struct {
	authService services.AuthService
	userService services.UserService
}

func NewAuthHandler(authService services.AuthService, userService services.UserService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
	}
}

// Signup godoc
//
//	@Summary		Create an account
//	@Description	Registers a user with email and password and signs them in
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		object	true	"name, email, password, locale"
//	@Success		201		{object}	jsonResponse	"user, token"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/auth/signup [post]
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Locale   string `json:"locale"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, token, err := h.authService.Signup(r.Context(), services.SignupInput{
		Name:      input.Name,
		Email:     input.Email,
		Password:  input.Password,
		Locale:    input.Locale,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.userService.PopulateImageURL(user)

	writeData(w, r, http.StatusCreated, jsonResponse{
		"user":  user,
		"token": token,
	})
}

// Login godoc
//
//	@Summary		Sign in
//	@Description	Exchanges email and password for a session token, superseding previous sessions
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		object	true	"email, password"
//	@Success		200		{object}	jsonResponse	"user, token"
//	@Failure		401		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse	"account is banned"
//	@Router			/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Email == "" || input.Password == "" {
		badRequestResponse(w, r, errors.New("email and password are required"))
		return
	}

	user, token, err := h.authService.Login(r.Context(), services.LoginInput{
		Email:     input.Email,
		Password:  input.Password,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.userService.PopulateImageURL(user)

	writeData(w, r, http.StatusOK, jsonResponse{
		"user":  user,
		"token": token,
	})
}

// Logout godoc
//
//	@Summary		Sign out
//	@Description	Revokes the session behind the presented token
//	@Tags			Auth
//	@Security		BearerAuth
//	@Success		204
//	@Failure		401	{object}	ErrorResponse
//	@Router			/auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.CurrentSession(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	if err := h.authService.Logout(r.Context(), session.ID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// VerifyEmail godoc
//
//	@Summary		Verify an email address
//	@Description	Consumes a verification token sent by email
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		object	true	"token"
//	@Success		200		{object}	jsonResponse
//	@Failure		404		{object}	ErrorResponse	"unknown or already used token"
//	@Failure		410		{object}	ErrorResponse	"expired token"
//	@Router			/auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Token string `json:"token"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Token == "" {
		badRequestResponse(w, r, errors.New("token is required"))
		return
	}

	if err := h.authService.VerifyEmail(r.Context(), input.Token); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"message": "email verified"})
}

// ForgotPassword godoc
//
//	@Summary		Request a password reset
//	@Description	Sends a reset link when the address is registered, without revealing whether it is
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		object	true	"email"
//	@Success		202		{object}	jsonResponse
//	@Router			/auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email string `json:"email"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Email == "" {
		badRequestResponse(w, r, errors.New("email is required"))
		return
	}

	if err := h.authService.RequestPasswordReset(r.Context(), input.Email); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusAccepted, jsonResponse{
		"message": "if the address is registered, a reset link is on its way",
	})
}

// ResetPassword godoc
//
//	@Summary		Reset a password
//	@Description	Consumes a reset token, updates the password and revokes every open session
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		object	true	"token, password"
//	@Success		200		{object}	jsonResponse
//	@Failure		404		{object}	ErrorResponse	"unknown or already used token"
//	@Failure		410		{object}	ErrorResponse	"expired token"
//	@Router			/auth/reset-password [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Token == "" || input.Password == "" {
		badRequestResponse(w, r, errors.New("token and password are required"))
		return
	}

	if err := h.authService.ResetPassword(r.Context(), input.Token, input.Password); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"message": "password updated"})
}
