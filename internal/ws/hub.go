package ws

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// tenantEvent is an internal struct for routing events to one store's room
type tenantEvent struct {
	Subdomain string
	Event     Event
}

// Hub maintains the set of active clients, one room per tenant
// subdomain, and broadcasts messages to them. Events never cross
// rooms: a store's terminals only ever see their own orders.
type Hub struct {
	// Registered clients by tenant subdomain
	rooms map[string]map[*Client]bool

	// Inbound messages from clients (register/unregister)
	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan *tenantEvent

	// Mutex for thread-safe room access
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *tenantEvent, 256),
	}
}

// Run starts the hub's main loop
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.subdomain] == nil {
				h.rooms[client.subdomain] = make(map[*Client]bool)
			}
			h.rooms[client.subdomain][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.subdomain]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					// Clean up empty rooms
					if len(clients) == 0 {
						delete(h.rooms, client.subdomain)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			clients := h.rooms[event.Subdomain]

			// Marshal event to JSON once
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			// Send to all clients in this store's room
			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, close and unregister
					close(client.send)
					delete(h.rooms[event.Subdomain], client)
					if len(h.rooms[event.Subdomain]) == 0 {
						delete(h.rooms, event.Subdomain)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event to all clients subscribed to a tenant's room
func (h *Hub) Broadcast(subdomain string, event Event) {
	h.broadcast <- &tenantEvent{
		Subdomain: subdomain,
		Event:     event,
	}
}

// Publish marshals payload and broadcasts it to the tenant's room.
// Best-effort: a payload that fails to marshal is logged and dropped,
// never surfaced to the request that produced the event.
func (h *Hub) Publish(subdomain, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", eventType).Warn("dropping unmarshalable event")
		return
	}
	h.Broadcast(subdomain, Event{Type: eventType, Payload: data})
}
