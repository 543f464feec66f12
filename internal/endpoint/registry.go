package endpoint

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// client is one accepted connection. Writes are serialized because the
// keepalive goroutine and the dispatch loop both write to the socket.
type client struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, data)
}

// registry is the set of live connections, keyed by opaque id. Removal is
// idempotent: a double remove is a no-op, never an error.
type registry struct {
	mu      sync.RWMutex
	clients map[string]*client
}

func newRegistry() *registry {
	return &registry{clients: map[string]*client{}}
}

func (r *registry) add(c *client) {
	r.mu.Lock()
	r.clients[c.id] = c
	r.mu.Unlock()
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
