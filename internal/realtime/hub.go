package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event names pushed to dashboard clients.
const (
	EventCallUpdate       = "callUpdate"
	EventAIUpdate         = "ai.update"
	EventWebhookReceived  = "webhookReceived"
	EventWebhookProcessed = "webhookProcessed"
	EventWebhookError     = "webhookError"
	EventNumbersUpdate    = "numbers:update"
)

// Broadcaster fans events out to all currently-connected subscribers.
//
// Delivery is best-effort: no persistence, no replay. A subscriber connecting
// after a publish never sees it. The dashboard performs a full-state fetch on
// connect and treats broadcasts purely as incremental deltas, so this is fine.
type Broadcaster interface {
	Publish(event string, payload any)
}

// Hub is the websocket-backed Broadcaster. One hub per process, created at
// startup and stopped at shutdown.
//
// Publish never blocks on subscriber delivery: each client has a bounded send
// queue and clients that fall behind are disconnected, so a slow dashboard
// cannot stall webhook processing.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	// done is closed when Run returns; pump goroutines select on it so they
	// never block on a hub that has stopped draining.
	done chan struct{}

	clients map[*client]struct{}
	log     *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
		log:        log,
	}
}

type message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Publish marshals on the caller goroutine so that per-subscriber ordering
// follows publish call order on a single publishing goroutine.
func (h *Hub) Publish(event string, payload any) {
	b, err := json.Marshal(message{Event: event, Payload: payload})
	if err != nil {
		h.log.Warn("realtime: marshal failed", "event", event, "err", err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		// Hub loop is wedged or stopped; drop rather than block the publisher.
		h.log.Warn("realtime: broadcast queue full, dropping", "event", event)
	}
}

// Run owns the client set. It returns when ctx is canceled, closing all
// client connections.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.shutdown()
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.log.Debug("realtime: client connected", "clients", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.shutdown()
			}
			h.log.Debug("realtime: client disconnected", "clients", len(h.clients))
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Client can't keep up; cut it loose instead of blocking.
					delete(h.clients, c)
					c.shutdown()
					h.log.Warn("realtime: dropping slow client")
				}
			}
		}
	}
}

// Nop discards all events. Useful when no realtime channel is wired.
type Nop struct{}

func (Nop) Publish(string, any) {}
