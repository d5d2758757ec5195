package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ServerMonitorAPI/internal/eventbus"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
)

const broadcastBuffer = 256

// Message is one bus event as pushed to dashboard clients.
type Message struct {
	Type      models.EventType `json:"type"`
	Payload   json.RawMessage  `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        *logger.Logger
	mu         sync.RWMutex
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		log:        log,
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("WebSocket hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.log.Info("WebSocket hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("WebSocket client connected. Total: %d", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(message.Type) {
					continue
				}
				select {
				case client.send <- message:
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register forwards every bus event to connected clients.
func (h *Hub) Register(bus eventbus.Bus) (eventbus.SubscriptionID, error) {
	return bus.Subscribe(models.EventWildcard, h.HandleEvent)
}

func (h *Hub) HandleEvent(_ context.Context, event models.Event) error {
	h.Broadcast(Message{
		Type:      event.Type,
		Payload:   event.Payload,
		Timestamp: event.Timestamp,
	})
	return nil
}

// Broadcast never blocks the publisher. When the buffer is full the
// message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("WebSocket broadcast buffer full, dropping %s", msg.Type)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
