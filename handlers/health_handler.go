package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

type HealthHandler struct {
	db *sql.DB
}

func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz godoc
//
//	@Summary		Health check
//	@Description	Reports whether the service and its database are reachable
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	jsonResponse	"status"
//	@Failure		503	{object}	ErrorResponse
//	@Router			/healthz [get]
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		errorResponse(w, r, http.StatusServiceUnavailable, "unavailable", "database unreachable")
		return
	}

	writeData(w, r, http.StatusOK, jsonResponse{"status": "ok"})
}
