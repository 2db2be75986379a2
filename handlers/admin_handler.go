package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/croftbase/member-console/middleware"
	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/services"
	"github.com/go-chi/chi/v5"
)

type AdminHandler struct {
	adminService services.AdminService
}

func NewAdminHandler(adminService services.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ListUsers godoc
//
//	@Summary		List users
//	@Description	Filters by search term, role and ban state, paginated
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			search	query		string	false	"matches name or email"
//	@Param			role	query		string	false	"admin or member"
//	@Param			banned	query		bool	false	"ban state"
//	@Param			page	query		int		false	"1-based page"
//	@Param			limit	query		int		false	"page size, capped at 100"
//	@Success		200		{object}	models.UserListResult
//	@Router			/admin/users [get]
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.UserFilter{
		Search: q.Get("search"),
		Page:   toInt(q.Get("page"), 1),
		Limit:  toInt(q.Get("limit"), 20),
	}
	if role := q.Get("role"); role != "" {
		userRole := models.UserRole(role)
		if !models.ValidRole(userRole) {
			badRequestResponse(w, r, errors.New("role must be admin or member"))
			return
		}
		filter.Role = &userRole
	}
	if banned := q.Get("banned"); banned != "" {
		value, err := strconv.ParseBool(banned)
		if err != nil {
			badRequestResponse(w, r, errors.New("banned must be true or false"))
			return
		}
		filter.Banned = &value
	}

	result, err := h.adminService.ListUsers(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, result)
}

// GetUser godoc
//
//	@Summary		Get a user
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		int	true	"user id"
//	@Success		200	{object}	jsonResponse	"user"
//	@Failure		404	{object}	ErrorResponse
//	@Router			/admin/users/{id} [get]
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, err := h.adminService.GetUser(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"user": user})
}

// SetRole godoc
//
//	@Summary		Change a user's role
//	@Description	Admins cannot change their own role
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int		true	"user id"
//	@Param			body	body		object	true	"role"
//	@Success		200		{object}	jsonResponse	"user"
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse	"acting on own account"
//	@Router			/admin/users/{id}/role [patch]
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	userID, err := userIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Role models.UserRole `json:"role"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, err := h.adminService.SetRole(r.Context(), actor.ID, userID, input.Role)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"user": user})
}

// Ban godoc
//
//	@Summary		Ban a user
//	@Description	Blocks the account and revokes its open sessions. Admins cannot ban themselves.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int		true	"user id"
//	@Param			body	body		object	true	"reason"
//	@Success		200		{object}	jsonResponse	"user"
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse	"acting on own account"
//	@Router			/admin/users/{id}/ban [post]
func (h *AdminHandler) Ban(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	userID, err := userIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Reason string `json:"reason"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, err := h.adminService.Ban(r.Context(), actor.ID, userID, input.Reason)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"user": user})
}

// Unban godoc
//
//	@Summary		Lift a ban
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		int	true	"user id"
//	@Success		200	{object}	jsonResponse	"user"
//	@Failure		404	{object}	ErrorResponse
//	@Router			/admin/users/{id}/ban [delete]
func (h *AdminHandler) Unban(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	userID, err := userIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, err := h.adminService.Unban(r.Context(), actor.ID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"user": user})
}

// DeleteUser godoc
//
//	@Summary		Delete a user
//	@Description	Removes the account and its sessions. Admins cannot delete themselves.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Param			id	path	int	true	"user id"
//	@Success		204
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse	"acting on own account"
//	@Router			/admin/users/{id} [delete]
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	userID, err := userIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.adminService.DeleteUser(r.Context(), actor.ID, userID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSessions godoc
//
//	@Summary		List a user's sessions
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		int	true	"user id"
//	@Success		200	{object}	jsonResponse	"sessions"
//	@Failure		404	{object}	ErrorResponse
//	@Router			/admin/users/{id}/sessions [get]
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	sessions, err := h.adminService.ListSessions(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"sessions": sessions})
}

// RevokeSessions godoc
//
//	@Summary		Revoke a user's sessions
//	@Description	Signs the user out everywhere
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		int	true	"user id"
//	@Success		200	{object}	jsonResponse	"revoked"
//	@Failure		404	{object}	ErrorResponse
//	@Router			/admin/users/{id}/sessions [delete]
func (h *AdminHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	revoked, err := h.adminService.RevokeSessions(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"revoked": revoked})
}

func userIDFromURL(r *http.Request) (int, error) {
	idStr := chi.URLParam(r, "id")
	userID, err := strconv.Atoi(idStr)
	if err != nil || userID <= 0 {
		return 0, errors.New("invalid user id")
	}
	return userID, nil
}

func toInt(s string, def int) int {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return def
}
