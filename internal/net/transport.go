package net

import (
	"encoding/json"
	"log"
	"sync"

	"SignFlow/internal/state"
)

// Hub tracks the websocket clients of every session and forwards session
// events to them. A session is subscribed while it has at least one client.
type Hub struct {
	clients map[string]map[*Client]bool
	unsub   map[string]func()
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]bool),
		unsub:   make(map[string]func()),
	}
}

// Add registers c and subscribes to its session on the first client.
func (h *Hub) Add(c *Client) {
	token := c.sess.Token()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[token] == nil {
		h.clients[token] = make(map[*Client]bool)
		h.unsub[token] = c.sess.Subscribe(func(ev state.Event) {
			data, err := json.Marshal(WSMessage{Type: TypeEvent, Event: &ev})
			if err != nil {
				log.Printf("[ws] Failed to encode %s event: %v", ev.Kind, err)
				return
			}
			h.Broadcast(token, data, nil)
		})
	}
	h.clients[token][c] = true
	log.Printf("[ws] Client %s joined session %s", c.addr, token)
}

// Remove unregisters c and closes its send queue. It is safe to call more
// than once.
func (h *Hub) Remove(c *Client) {
	token := c.sess.Token()
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[token]
	if !set[c] {
		return
	}
	delete(set, c)
	close(c.send)
	log.Printf("[ws] Client %s left session %s", c.addr, token)
	if len(set) == 0 {
		h.dropLocked(token)
	}
}

func (h *Hub) dropLocked(token string) {
	if unsub := h.unsub[token]; unsub != nil {
		unsub()
	}
	delete(h.unsub, token)
	delete(h.clients, token)
}

// Broadcast queues data for every client of a session except exclude. A
// client whose queue is full misses the message.
func (h *Hub) Broadcast(token string, data []byte, exclude *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[token] {
		if c == exclude {
			continue
		}
		select {
		case c.send <- data:
		default:
			log.Printf("[ws] Dropping message for slow client %s", c.addr)
		}
	}
}

// CloseSession disconnects every client of a session.
func (h *Hub) CloseSession(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[token] {
		close(c.send)
	}
	h.dropLocked(token)
}

// Count returns the number of clients of a session.
func (h *Hub) Count(token string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[token])
}
