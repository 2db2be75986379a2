package handlers

import (
	"errors"
	"net/http"

	"github.com/croftbase/member-console/middleware"
	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/services"
	"github.com/go-chi/chi/v5"
)

type InvitationHandler struct {
	invitationService services.InvitationService
	userService       services.UserService
}

func NewInvitationHandler(invitationService services.InvitationService, userService services.UserService) *InvitationHandler {
	return &InvitationHandler{
		invitationService: invitationService,
		userService:       userService,
	}
}

// Preview godoc
//
//	@Summary		Preview an invitation
//	@Description	Shows who invited the address and for which role, without consuming the token
//	@Tags			Invitations
//	@Produce		json
//	@Param			token	path		string	true	"invitation token"
//	@Success		200		{object}	jsonResponse	"invitation"
//	@Failure		404		{object}	ErrorResponse	"unknown or already used token"
//	@Failure		410		{object}	ErrorResponse	"expired token"
//	@Router			/invitations/{token} [get]
func (h *InvitationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	invitation, err := h.invitationService.Preview(r.Context(), token)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"invitation": invitation})
}

// Accept godoc
//
//	@Summary		Accept an invitation
//	@Description	Creates the invited account with the invited role, consumes the token and signs the user in
//	@Tags			Invitations
//	@Accept			json
//	@Produce		json
//	@Param			token	path		string	true	"invitation token"
//	@Param			body	body		object	true	"name, password, locale"
//	@Success		201		{object}	jsonResponse	"user, token"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse	"unknown or already used token"
//	@Failure		409		{object}	ErrorResponse	"email already registered"
//	@Failure		410		{object}	ErrorResponse	"expired token"
//	@Router			/invitations/{token}/accept [post]
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name     string `json:"name"`
		Password string `json:"password"`
		Locale   string `json:"locale"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, token, err := h.invitationService.Accept(r.Context(), services.AcceptInvitationInput{
		Token:     chi.URLParam(r, "token"),
		Name:      input.Name,
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

// Create godoc
//
//	@Summary		Invite a user
//	@Description	Stores a single-use invitation for the address and emails the link. Re-inviting supersedes the previous token.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		object	true	"email, role"
//	@Success		201		{object}	jsonResponse	"invitation"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse	"email already registered"
//	@Router			/admin/invitations [post]
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input struct {
		Email string          `json:"email"`
		Role  models.UserRole `json:"role"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Email == "" {
		badRequestResponse(w, r, errors.New("email is required"))
		return
	}

	invitation, err := h.invitationService.Create(r.Context(), services.CreateInvitationInput{
		Email:     input.Email,
		Role:      input.Role,
		InviterID: actor.ID,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusCreated, jsonResponse{"invitation": invitation})
}

// List godoc
//
//	@Summary		List pending invitations
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	jsonResponse	"invitations"
//	@Router			/admin/invitations [get]
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	invitations, err := h.invitationService.List(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"invitations": invitations})
}

// Revoke godoc
//
//	@Summary		Revoke an invitation
//	@Description	Deletes a pending invitation so its token can no longer be redeemed
//	@Tags			Admin
//	@Security		BearerAuth
//	@Param			id	path	string	true	"invitation id"
//	@Success		204
//	@Failure		404	{object}	ErrorResponse
//	@Router			/admin/invitations/{id} [delete]
func (h *InvitationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := h.invitationService.Revoke(r.Context(), chi.URLParam(r, "id")); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
