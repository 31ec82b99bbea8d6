package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const maxMessageSize = 64 * 1024

// Client is one connected subscriber.
type Client struct {
	id   string
	hub  *hub
	conn *websocket.Conn
	send chan []byte

	mutex       sync.Mutex
	failures    int
	lockedUntil time.Time
}

func (c *Client) ID() string {
	return c.id
}

// trySend queues data without blocking. It reports false when the buffer is
// full or the client is already gone.
func (c *Client) trySend(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

type hub struct {
	mutex         sync.RWMutex
	clients       map[*Client]struct{}
	authenticated map[*Client]struct{}
}

func newHub() *hub {
	return &hub{
		clients:       make(map[*Client]struct{}),
		authenticated: make(map[*Client]struct{}),
	}
}

func (h *hub) register(conn *websocket.Conn, sendBuffer int) *Client {
	client := &Client{
		id:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[client] = struct{}{}
	return client
}

// unregister removes the client from both sets. Only the caller that
// actually removed it closes the send channel.
func (h *hub) unregister(client *Client) bool {
	h.mutex.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	delete(h.authenticated, client)
	h.mutex.Unlock()

	if existed {
		close(client.send)
	}
	return existed
}

func (h *hub) setAuthenticated(client *Client, authenticated bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	if authenticated {
		h.authenticated[client] = struct{}{}
	} else {
		delete(h.authenticated, client)
	}
}

func (h *hub) isAuthenticated(client *Client) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, ok := h.authenticated[client]
	return ok
}

func (h *hub) snapshot(protected bool) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	set := h.clients
	if protected {
		set = h.authenticated
	}
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	return clients
}

func (h *hub) counts() (int, int) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients), len(h.authenticated)
}

func (h *hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		close(client.send)
		client.conn.Close()
		delete(h.clients, client)
		delete(h.authenticated, client)
	}
}
