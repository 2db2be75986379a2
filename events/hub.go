package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event is a single entry on the admin activity feed.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

// Publisher lets services announce domain activity without knowing who
// listens. The hub implements it; tests plug in a recorder.
type Publisher interface {
	Publish(eventType string, payload interface{})
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(string, interface{}) {}

// Hub fans events out to connected websocket clients.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	broadcast  chan []byte

	clients map[*Client]bool
	mu      sync.RWMutex
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*Client]bool),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.logger.Debug("events client registered", slog.Int("clients", len(h.clients)))
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
				h.logger.Debug("events client unregistered", slog.Int("clients", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				client.trySend(message)
			}
			h.mu.RUnlock()
		}
	}
}

// Publish marshals the event and queues it for broadcast. Slow or absent
// listeners never block the caller.
func (h *Hub) Publish(eventType string, payload interface{}) {
	event := Event{
		Type:    eventType,
		Payload: payload,
		At:      time.Now().UTC(),
	}
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", slog.String("type", eventType), slog.Any("error", err))
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("event dropped, broadcast queue full", slog.String("type", eventType))
	}
}
