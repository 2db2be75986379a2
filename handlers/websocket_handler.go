package handlers

import (
	"log/slog"
	"net/http"

	"github.com/croftbase/member-console/events"
	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades admin connections onto the event hub. The
// route sits behind the auth middleware, which accepts the session token
// as a query parameter because browsers cannot set headers on websocket
// dials.
type WebSocketHandler struct {
	hub      *events.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWebSocketHandler(hub *events.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
		logger: logger,
	}
}

// Events godoc
//
//	@Summary		Audit event feed
//	@Description	Upgrades to a websocket that streams user, invitation and flag events as they happen
//	@Tags			Admin
//	@Security		BearerAuth
//	@Param			token	query	string	false	"session token, alternative to the Authorization header"
//	@Success		101
//	@Failure		401	{object}	ErrorResponse
//	@Router			/admin/events [get]
func (h *WebSocketHandler) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := events.NewClient(h.hub, conn)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
