package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/croftbase/member-console/services"
	"github.com/go-chi/chi/v5"
)

type FlagHandler struct {
	flagService services.FlagService
}

func NewFlagHandler(flagService services.FlagService) *FlagHandler {
	return &FlagHandler{flagService: flagService}
}

// Evaluate godoc
//
//	@Summary		Evaluate feature flags
//	@Description	Returns the enabled flags keyed by name, a missing key reads as disabled
//	@Tags			Flags
//	@Produce		json
//	@Success		200	{object}	jsonResponse	"flags"
//	@Router			/flags [get]
func (h *FlagHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	flags, err := h.flagService.Evaluate(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	enabled := make(map[string]bool, len(flags))
	for name, on := range flags {
		if on {
			enabled[name] = true
		}
	}

	writeData(w, r, http.StatusOK, jsonResponse{"flags": enabled})
}

// EvaluateOne godoc
//
//	@Summary		Evaluate a single flag
//	@Tags			Flags
//	@Produce		json
//	@Param			name	path		string	true	"flag name"
//	@Success		200		{object}	jsonResponse	"name, enabled"
//	@Failure		404		{object}	ErrorResponse
//	@Router			/flags/{name} [get]
func (h *FlagHandler) EvaluateOne(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	enabled, err := h.flagService.EvaluateOne(r.Context(), name)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{
		"name":    name,
		"enabled": enabled,
	})
}

// List godoc
//
//	@Summary		List feature flags
//	@Description	Full flag rows including metadata and disabled flags
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	jsonResponse	"flags"
//	@Router			/admin/flags [get]
func (h *FlagHandler) List(w http.ResponseWriter, r *http.Request) {
	flags, err := h.flagService.List(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"flags": flags})
}

// Create godoc
//
//	@Summary		Create a feature flag
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		services.CreateFlagInput	true	"flag definition"
//	@Success		201		{object}	jsonResponse	"flag"
//	@Failure		400		{object}	ErrorResponse	"invalid name"
//	@Failure		409		{object}	ErrorResponse	"name already taken"
//	@Router			/admin/flags [post]
func (h *FlagHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input services.CreateFlagInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	flag, err := h.flagService.Create(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusCreated, jsonResponse{"flag": flag})
}

// Update godoc
//
//	@Summary		Update a feature flag
//	@Description	Applies the provided fields only
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int							true	"flag id"
//	@Param			body	body		services.UpdateFlagInput	true	"fields to change"
//	@Success		200		{object}	jsonResponse	"flag"
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse	"name already taken"
//	@Router			/admin/flags/{id} [patch]
func (h *FlagHandler) Update(w http.ResponseWriter, r *http.Request) {
	flagID, err := flagIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.UpdateFlagInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	flag, err := h.flagService.Update(r.Context(), flagID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"flag": flag})
}

// Toggle godoc
//
//	@Summary		Toggle a feature flag
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int		true	"flag id"
//	@Param			body	body		object	true	"enabled"
//	@Success		200		{object}	jsonResponse	"flag"
//	@Failure		404		{object}	ErrorResponse
//	@Router			/admin/flags/{id}/toggle [post]
func (h *FlagHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	flagID, err := flagIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Enabled *bool `json:"enabled"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Enabled == nil {
		badRequestResponse(w, r, errors.New("enabled is required"))
		return
	}

	flag, err := h.flagService.Toggle(r.Context(), flagID, *input.Enabled)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"flag": flag})
}

// Delete godoc
//
//	@Summary		Delete a feature flag
//	@Tags			Admin
//	@Security		BearerAuth
//	@Param			id	path	int	true	"flag id"
//	@Success		204
//	@Failure		404	{object}	ErrorResponse
//	@Router			/admin/flags/{id} [delete]
func (h *FlagHandler) Delete(w http.ResponseWriter, r *http.Request) {
	flagID, err := flagIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.flagService.Delete(r.Context(), flagID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func flagIDFromURL(r *http.Request) (int, error) {
	idStr := chi.URLParam(r, "id")
	flagID, err := strconv.Atoi(idStr)
	if err != nil || flagID <= 0 {
		return 0, errors.New("invalid flag id")
	}
	return flagID, nil
}
