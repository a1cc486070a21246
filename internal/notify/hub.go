// Package notify pushes bill events to connected calendar screens over
// websockets so they can refetch the days that changed.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"bills/internal/core"
	applog "bills/internal/log"
)

// logger is resolved per call so it follows the process default set at startup.
func logger() *slog.Logger {
	return slog.Default().With(applog.FieldComponent, applog.ComponentNotify)
}

var (
	ErrHubBusy    = errors.New("notification hub is busy")
	ErrHubStopped = errors.New("notification hub is stopped")
)

// Hub tracks connected clients and fans bill events out to the ones
// watching an affected day.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan core.BillEvent
	done       chan struct{}
	stopOnce   sync.Once

	mu      sync.Mutex
	clients map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan core.BillEvent, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			logger().Debug("Websocket client connected", "clients", n)

		case client := <-h.unregister:
			h.remove(client)

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(event core.BillEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger().Error("Error marshalling bill event", applog.FieldOperation, applog.OpPublish, "error", err)
		return
	}

	dates := []core.Date{event.Date}
	if event.PreviousDate != "" {
		dates = append(dates, event.PreviousDate)
	}

	h.mu.Lock()
	recipients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.watchesAny(dates) {
			recipients = append(recipients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range recipients {
		if !c.trySend(payload) {
			logger().Warn("Websocket client send buffer full, disconnecting")
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		logger().Debug("Websocket client disconnected", "clients", n)
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			c.close()
		}
		h.mu.Unlock()
	})
}

// Publish queues an event for delivery. It never blocks: a full queue
// returns ErrHubBusy.
func (h *Hub) Publish(_ context.Context, event core.BillEvent) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.broadcast <- event:
		return nil
	default:
		return ErrHubBusy
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
