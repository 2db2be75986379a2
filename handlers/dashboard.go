package handlers

import (
	"net/http"

	"github.com/croftbase/member-console/services"
)

type DashboardHandler struct {
	dashboardService services.DashboardService
}

func NewDashboardHandler(dashboardService services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// Stats godoc
//
//	@Summary		Dashboard statistics
//	@Description	Totals for users, sessions, pending invitations and flags, gathered in parallel
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	models.DashboardStats
//	@Router			/admin/stats [get]
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboardService.GetStats(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, stats)
}
