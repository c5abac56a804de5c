// Package livereload pushes restart notifications to connected browsers
// over a websocket so pages reload once the application is rebuilt.
package livereload

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Message types sent to clients
const (
	TypeHello      = "hello"
	TypeRestarting = "restarting"
	TypeReload     = "reload"
)

// Message is the JSON frame sent to every client
type Message struct {
	Type  string `json:"type"`
	Epoch string `json:"epoch,omitempty"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// Hub tracks websocket clients and broadcasts restart events. It implements
// rewire.RestartListener.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	epoch    func() string

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a hub. epoch, when set, labels every reload message.
func NewHub(logger *zap.Logger, epoch func() string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger.Named("livereload"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		epoch:   epoch,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and keeps it until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	if err := c.send(Message{Type: TypeHello, Epoch: h.currentEpoch()}); err != nil {
		conn.Close()
		return
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("Client connected", zap.String("remote", r.RemoteAddr))

	go h.read(c)
}

// read drains the connection; clients never send anything meaningful
func (h *Hub) read(c *client) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Client read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every client, dropping the ones that fail
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			h.logger.Debug("Dropping client", zap.Error(err))
			h.drop(c)
		}
	}
}

// BeforeAppRestart tells clients a restart is in progress
func (h *Hub) BeforeAppRestart() error {
	h.Broadcast(Message{Type: TypeRestarting})
	return nil
}

// AfterAppRestart tells clients to reload
func (h *Hub) AfterAppRestart() error {
	h.Broadcast(Message{Type: TypeReload, Epoch: h.currentEpoch()})
	return nil
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.conn.Close()
	}
}

func (h *Hub) currentEpoch() string {
	if h.epoch == nil {
		return ""
	}
	return h.epoch()
}
