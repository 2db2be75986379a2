package handlers

import (
	"errors"
	"net/http"

	"github.com/croftbase/member-console/middleware"
	"github.com/croftbase/member-console/services"
)

// maxAvatarBytes caps avatar uploads at 5 MiB.
const maxAvatarBytes = 5 << 20

type UserHandler struct {
	userService services.UserService
	sessions    services.SessionService
}

func NewUserHandler(userService services.UserService, sessions services.SessionService) *UserHandler {
	return &UserHandler{
		userService: userService,
		sessions:    sessions,
	}
}

// Me godoc
//
//	@Summary		Get the signed-in user
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	jsonResponse	"user"
//	@Failure		401	{object}	ErrorResponse
//	@Router			/users/me [get]
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	current, ok := middleware.CurrentUser(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	user, err := h.userService.GetProfile(r.Context(), current.ID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"user": user})
}

// UpdateMe godoc
//
//	@Summary		Update the signed-in user's profile
//	@Description	Applies the provided fields only, omitted ones keep their value
//	@Tags			Users
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		services.UpdateProfileInput	true	"fields to change"
//	@Success		200		{object}	jsonResponse	"user"
//	@Failure		400		{object}	ErrorResponse
//	@Router			/users/me [patch]
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	current, ok := middleware.CurrentUser(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input services.UpdateProfileInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Name == nil && input.Bio == nil && input.Locale == nil {
		badRequestResponse(w, r, errors.New("no fields provided for update"))
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), current.ID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"user": user})
}

// UploadAvatar godoc
//
//	@Summary		Upload an avatar
//	@Description	Accepts a multipart image up to 5 MiB and replaces the previous avatar
//	@Tags			Users
//	@Security		BearerAuth
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			avatar	formData	file	true	"image file"
//	@Success		200		{object}	jsonResponse	"user"
//	@Failure		400		{object}	ErrorResponse	"unsupported image type or oversized upload"
//	@Router			/users/me/avatar [post]
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	current, ok := middleware.CurrentUser(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)

	file, header, err := r.FormFile("avatar")
	if err != nil {
		badRequestResponse(w, r, errors.New("avatar file is required and must not exceed 5 MiB"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		badRequestResponse(w, r, errors.New("content type required"))
		return
	}

	user, err := h.userService.UploadAvatar(r.Context(), current.ID, file, contentType)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"user": user})
}

// RemoveAvatar godoc
//
//	@Summary		Remove the avatar
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	jsonResponse	"user"
//	@Router			/users/me/avatar [delete]
func (h *UserHandler) RemoveAvatar(w http.ResponseWriter, r *http.Request) {
	current, ok := middleware.CurrentUser(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	user, err := h.userService.RemoveAvatar(r.Context(), current.ID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"user": user})
}

// GetPreferences godoc
//
//	@Summary		Get the signed-in user's preferences
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	jsonResponse	"preferences"
//	@Router			/users/me/preferences [get]
func (h *UserHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	current, ok := middleware.CurrentUser(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	prefs, err := h.userService.GetPreferences(r.Context(), current.ID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"preferences": prefs})
}

// UpdatePreferences godoc
//
//	@Summary		Update the signed-in user's preferences
//	@Tags			Users
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		services.UpdatePreferencesInput	true	"fields to change"
//	@Success		200		{object}	jsonResponse	"preferences"
//	@Failure		400		{object}	ErrorResponse
//	@Router			/users/me/preferences [put]
func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	current, ok := middleware.CurrentUser(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input services.UpdatePreferencesInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	prefs, err := h.userService.UpdatePreferences(r.Context(), current.ID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"preferences": prefs})
}

// ListSessions godoc
//
//	@Summary		List the signed-in user's sessions
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	jsonResponse	"sessions, current"
//	@Router			/users/me/sessions [get]
func (h *UserHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	current, ok := middleware.CurrentUser(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	session, _ := middleware.CurrentSession(r.Context())

	sessions, err := h.sessions.ListForUser(r.Context(), current.ID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{"sessions": sessions}
	if session != nil {
		response["current"] = session.ID
	}
	writeData(w, r, http.StatusOK, response)
}

// RevokeOtherSessions godoc
//
//	@Summary		Sign out everywhere else
//	@Description	Revokes every session except the one behind the presented token
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	jsonResponse	"revoked"
//	@Router			/users/me/sessions [delete]
func (h *UserHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	current, ok := middleware.CurrentUser(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	session, ok := middleware.CurrentSession(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	revoked, err := h.sessions.RevokeOthers(r.Context(), current.ID, session.ID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"revoked": revoked})
}
