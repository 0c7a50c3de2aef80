// Package sse fans lifecycle events out to server-sent-event subscribers.
package sse

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Event is one server-sent event.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Format renders e in text/event-stream framing.
func (e Event) Format() string {
	data, _ := json.Marshal(e.Data)
	return "event: " + e.Type + "\ndata: " + string(data) + "\n\n"
}

// Client is one subscriber. An empty Resource receives every event.
type Client struct {
	ID       string
	Resource string
	ch       chan Event
}

// Events is closed when the client is unsubscribed.
func (c *Client) Events() <-chan Event {
	return c.ch
}

// Hub tracks subscribers by resource.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	buffer  int
	dropped uint64
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		buffer:  buffer,
	}
}

func (h *Hub) Subscribe(resource string) *Client {
	c := &Client{
		ID:       uuid.NewString(),
		Resource: resource,
		ch:       make(chan Event, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[resource] == nil {
		h.clients[resource] = make(map[*Client]struct{})
	}
	h.clients[resource][c] = struct{}{}
	return c
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[c.Resource]
	if !ok {
		return
	}
	if _, exists := clients[c]; !exists {
		return
	}
	delete(clients, c)
	close(c.ch)
	if len(clients) == 0 {
		delete(h.clients, c.Resource)
	}
}

// Publish delivers e to subscribers of resource and to catch-all
// subscribers. Slow clients with a full buffer miss the event. It returns
// the number of clients reached.
func (h *Hub) Publish(resource string, e Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := h.deliver(h.clients[""], e)
	if resource != "" {
		sent += h.deliver(h.clients[resource], e)
	}
	return sent
}

func (h *Hub) deliver(clients map[*Client]struct{}, e Event) int {
	sent := 0
	for c := range clients {
		select {
		case c.ch <- e:
			sent++
		default:
			h.dropped++
		}
	}
	return sent
}

// Count returns the number of subscribers to resource.
func (h *Hub) Count(resource string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[resource])
}

// Dropped is the number of events skipped because a buffer was full.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
