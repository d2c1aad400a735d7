// Package stream pushes entity state changes to WebSocket clients.
package stream

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/host"
)

const (
	DefaultPingInterval = 30 * time.Second
	writeTimeout        = 10 * time.Second
	clientBuffer        = 64
)

// Message types sent to clients.
const (
	TypeSnapshot      = "snapshot"
	TypeStateChanged  = "state_changed"
	TypeEntityRemoved = "entity_removed"
	TypePing          = "ping"
)

// Source is the host surface the stream reads from.
type Source interface {
	Entities() []host.Entity
	State(entityID string) (host.StateEvent, bool)
	Subscribe(listener host.StateListener) func()
}

// Message is one frame sent to a client.
type Message struct {
	Type      string `json:"type"`
	EntityID  string `json:"entity_id,omitempty"`
	Available *bool  `json:"available,omitempty"`
	State     any    `json:"state,omitempty"`
	Entities  []any  `json:"entities,omitempty"`
	Timestamp string `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	send    chan Message
	done    chan struct{}
	once    sync.Once
}

func (c *client) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Manager fans host state events out to every connected client.
type Manager struct {
	source       Source
	logger       *log.Logger
	pingInterval time.Duration
	now          func() time.Time

	mu          sync.RWMutex
	clients     map[*client]struct{}
	unsubscribe func()
	sent        atomic.Int64
	dropped     atomic.Int64
}

// NewManager builds a Manager. pingInterval <= 0 selects the default.
func NewManager(source Source, pingInterval time.Duration, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Manager{
		source:       source,
		logger:       logger,
		pingInterval: pingInterval,
		now:          time.Now,
		clients:      make(map[*client]struct{}),
	}
}

// Start subscribes to host state events.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		return
	}
	m.unsubscribe = m.source.Subscribe(m.broadcast)
}

// Close unsubscribes and disconnects every client.
func (m *Manager) Close() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	clients := make([]*client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[*client]struct{})
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	for _, c := range clients {
		c.close()
	}
}

// Clients returns the number of connected clients.
func (m *Manager) Clients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Stats summarizes stream activity.
type Stats struct {
	Clients int   `json:"clients"`
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
}

func (m *Manager) Stats() Stats {
	return Stats{Clients: m.Clients(), Sent: m.sent.Load(), Dropped: m.dropped.Load()}
}

// RegisterRoutes wires the stream endpoint to the router.
func RegisterRoutes(router chi.Router, manager *Manager) {
	router.HandleFunc("/ws/entities", manager.ServeWS)
}

// ServeWS upgrades the request, sends the current snapshot and then streams events.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	// Registered before the snapshot is built so events raised meanwhile
	// queue on c.send and follow the snapshot.
	c := &client{conn: conn, send: make(chan Message, clientBuffer), done: make(chan struct{})}
	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()

	if err := c.write(m.snapshot()); err != nil {
		m.logger.Printf("STREAM: failed to send snapshot: %v", err)
		m.remove(c)
		return
	}
	m.logger.Printf("STREAM: client connected (%d total)", m.Clients())

	go m.writeLoop(c)
	go m.readLoop(c)
}

func (m *Manager) snapshot() Message {
	entities := m.source.Entities()
	states := make([]any, 0, len(entities))
	for _, entity := range entities {
		if event, ok := m.source.State(entity.EntityID()); ok && event.State != nil {
			states = append(states, event.State)
		}
	}
	return Message{Type: TypeSnapshot, Entities: states, Timestamp: api.FormatTime(m.now())}
}

func (m *Manager) broadcast(event host.StateEvent) {
	msg := Message{
		Type:      TypeStateChanged,
		EntityID:  event.EntityID,
		State:     event.State,
		Timestamp: api.FormatTime(event.UpdatedAt),
	}
	if event.Removed {
		msg.Type = TypeEntityRemoved
		msg.State = nil
	} else {
		available := event.Available
		msg.Available = &available
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for c := range m.clients {
		select {
		case c.send <- msg:
		default:
			// Slow consumer; the write loop will notice the close.
			m.dropped.Add(1)
			m.logger.Printf("STREAM: client buffer full, disconnecting")
			go m.remove(c)
		}
	}
}

func (m *Manager) writeLoop(c *client) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				m.remove(c)
				return
			}
			m.sent.Add(1)
		case <-ticker.C:
			if err := c.write(Message{Type: TypePing, Timestamp: api.FormatTime(m.now())}); err != nil {
				m.remove(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop discards client frames and detects disconnects.
func (m *Manager) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			m.remove(c)
			return
		}
	}
}

func (m *Manager) remove(c *client) {
	m.mu.Lock()
	_, ok := m.clients[c]
	delete(m.clients, c)
	m.mu.Unlock()

	c.close()
	if ok {
		m.logger.Printf("STREAM: client disconnected")
	}
}
