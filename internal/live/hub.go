// Package live fans bus events out to browsers over WebSocket.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/HerbHall/netdash/internal/event"
)

// Message is the frame sent to every client.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// TypeHello is the first frame a client receives.
const TypeHello = "hello"

// Options configures a Hub.
type Options struct {
	// OriginPatterns are passed to websocket.Accept. Empty means same origin.
	OriginPatterns []string
	// Hello builds the payload of the first frame. Nil sends no payload.
	Hello func() any
	// Now overrides the timestamp source.
	Now func() time.Time
}

// Hub manages WebSocket connections and broadcasts messages.
type Hub struct {
	clients map[*client]struct{}
	mu      sync.RWMutex
	logger  *zap.Logger
	opts    Options

	register   chan *client
	unregister chan *client
	broadcast  chan Message

	done     chan struct{}
	stopOnce sync.Once
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. Call Run to start its loop.
func NewHub(logger *zap.Logger, opts Options) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		logger:     logger,
		opts:       opts,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("live client connected", zap.Int("total", total))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("live client disconnected", zap.Int("total", total))

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("live marshal", zap.String("type", msg.Type), zap.Error(err))
				continue
			}
			h.mu.Lock()
			var slow []*client
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					slow = append(slow, c)
				}
			}
			for _, c := range slow {
				delete(h.clients, c)
				close(c.send)
				h.logger.Warn("live client evicted (too slow)")
			}
			h.mu.Unlock()
		}
	}
}

// Stop signals the hub to shut down. Safe to call multiple times.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for every client. It never blocks; a full
// queue drops the message.
func (h *Hub) Broadcast(msgType string, payload any) {
	msg := Message{Type: msgType, Timestamp: h.opts.Now().UTC(), Payload: payload}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("live broadcast queue full, dropping message", zap.String("type", msgType))
	}
}

// Attach forwards every event on sub to the clients, using the topic as
// the message type. It returns the unsubscribe function.
func (h *Hub) Attach(sub event.Subscriber) func() {
	return sub.SubscribeAll(func(_ context.Context, e event.Event) {
		h.Broadcast(e.Topic, e.Payload)
	})
}

// ServeHTTP upgrades the request and streams messages until the client
// leaves or the hub stops. Client frames are read and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(h.opts.OriginPatterns) > 0 {
		opts.OriginPatterns = h.opts.OriginPatterns
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.logger.Warn("live accept", zap.Error(err))
		return
	}
	conn.SetReadLimit(4096)

	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}

	hello := Message{Type: TypeHello, Timestamp: h.opts.Now().UTC()}
	if h.opts.Hello != nil {
		hello.Payload = h.opts.Hello()
	}
	if data, err := json.Marshal(hello); err == nil {
		c.send <- data
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	for msg := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			return
		}
	}
	c.conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
			c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-h.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}
