package stream

import (
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/heos-hub-go/internal/host"
)

type stubEntity struct{ id string }

func (e stubEntity) EntityID() string { return e.id }
func (e stubEntity) Name() string     { return e.id }
func (e stubEntity) ShouldPoll() bool { return false }
func (e stubEntity) Available() bool  { return true }

type fakeSource struct {
	mu       sync.Mutex
	states   map[string]host.StateEvent
	order    []string
	listener host.StateListener

	// duringSnapshot runs once while a client's snapshot is being built.
	duringSnapshot func()
	snapshotOnce   sync.Once
}

func (s *fakeSource) Entities() []host.Entity {
	if s.duringSnapshot != nil {
		s.snapshotOnce.Do(s.duringSnapshot)
	}
	out := make([]host.Entity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, stubEntity{id: id})
	}
	return out
}

func (s *fakeSource) State(entityID string) (host.StateEvent, bool) {
	event, ok := s.states[entityID]
	return event, ok
}

func (s *fakeSource) Subscribe(listener host.StateListener) func() {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.listener = nil
		s.mu.Unlock()
	}
}

func (s *fakeSource) emit(event host.StateEvent) {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener != nil {
		listener(event)
	}
}

func startServer(t *testing.T, source *fakeSource) (*Manager, *websocket.Conn) {
	t.Helper()
	manager := NewManager(source, time.Hour, log.New(io.Discard, "", 0))
	manager.Start()
	t.Cleanup(manager.Close)

	router := chi.NewRouter()
	RegisterRoutes(router, manager)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/entities"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return manager, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamSendsSnapshotThenEvents(t *testing.T) {
	source := &fakeSource{
		states: map[string]host.StateEvent{
			"player-1": {EntityID: "player-1", State: map[string]any{"state": "playing"}, Available: true},
		},
		order: []string{"player-1", "player-2"},
	}
	manager, conn := startServer(t, source)

	snapshot := readMessage(t, conn)
	require.Equal(t, TypeSnapshot, snapshot.Type)
	require.Len(t, snapshot.Entities, 1)

	require.Eventually(t, func() bool { return manager.Clients() == 1 }, time.Second, 5*time.Millisecond)

	source.emit(host.StateEvent{EntityID: "player-2", State: map[string]any{"state": "paused"}, Available: false, UpdatedAt: time.Now()})
	changed := readMessage(t, conn)
	require.Equal(t, TypeStateChanged, changed.Type)
	require.Equal(t, "player-2", changed.EntityID)
	require.NotNil(t, changed.Available)
	require.False(t, *changed.Available)

	source.emit(host.StateEvent{EntityID: "player-1", Removed: true, UpdatedAt: time.Now()})
	removed := readMessage(t, conn)
	require.Equal(t, TypeEntityRemoved, removed.Type)
	require.Nil(t, removed.State)
}

func TestStreamForgetsDisconnectedClients(t *testing.T) {
	source := &fakeSource{states: map[string]host.StateEvent{}}
	manager, conn := startServer(t, source)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return manager.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return manager.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCloseDisconnectsClients(t *testing.T) {
	source := &fakeSource{states: map[string]host.StateEvent{}}
	manager, conn := startServer(t, source)
	readMessage(t, conn)

	manager.Close()
	require.Zero(t, manager.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestStreamKeepsEventsRaisedDuringSnapshot(t *testing.T) {
	source := &fakeSource{
		states: map[string]host.StateEvent{},
		order:  []string{"player-1"},
	}
	source.duringSnapshot = func() {
		source.emit(host.StateEvent{EntityID: "player-1", State: map[string]any{"state": "playing"}, Available: true, UpdatedAt: time.Now()})
	}
	_, conn := startServer(t, source)

	snapshot := readMessage(t, conn)
	require.Equal(t, TypeSnapshot, snapshot.Type)

	changed := readMessage(t, conn)
	require.Equal(t, TypeStateChanged, changed.Type)
	require.Equal(t, "player-1", changed.EntityID)
}
