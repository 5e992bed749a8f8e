package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"AnemoneDB/internal/models"
)

const writeTimeout = 5 * time.Second

// Snapshot returns the current job view sent to a client when it connects.
type Snapshot func(ctx context.Context) (models.JobView, error)

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v models.JobView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Manager manages operator console connections and pushes job updates to them.
type Manager struct {
	clients   map[*client]struct{}
	clientsMu sync.Mutex
	snapshot  Snapshot
	log       *zap.Logger
}

func New(snapshot Snapshot, logger *zap.Logger) *Manager {
	return &Manager{
		clients:  make(map[*client]struct{}),
		snapshot: snapshot,
		log:      logger,
	}
}

// AddClient registers conn, sends it the current view and drops it once the
// peer goes away.
func (m *Manager) AddClient(ctx context.Context, conn *websocket.Conn) {
	c := &client{conn: conn}

	m.clientsMu.Lock()
	m.clients[c] = struct{}{}
	total := len(m.clients)
	m.clientsMu.Unlock()

	m.log.Info("console client connected", zap.Int("clients", total))

	if m.snapshot != nil {
		view, err := m.snapshot(ctx)
		if err != nil {
			m.log.Warn("failed to load job view for new client", zap.Error(err))
		} else if err := c.send(view); err != nil {
			m.log.Warn("failed to send initial job view", zap.Error(err))
		}
	}

	go func() {
		defer m.remove(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (m *Manager) remove(c *client) {
	m.clientsMu.Lock()
	delete(m.clients, c)
	total := len(m.clients)
	m.clientsMu.Unlock()

	c.conn.Close()
	m.log.Info("console client disconnected", zap.Int("clients", total))
}

// Broadcast sends view to every connected client.
func (m *Manager) Broadcast(view models.JobView) {
	m.clientsMu.Lock()
	clients := make([]*client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.clientsMu.Unlock()

	for _, c := range clients {
		go func(c *client) {
			if err := c.send(view); err != nil {
				m.log.Warn("failed to send job update", zap.Error(err))
			}
		}(c)
	}
}

func (m *Manager) ClientCount() int {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	return len(m.clients)
}
