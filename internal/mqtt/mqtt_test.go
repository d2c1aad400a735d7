package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/heos-hub-go/internal/config"
	"github.com/strefethen/heos-hub-go/internal/entities"
	"github.com/strefethen/heos-hub-go/internal/host"
	"github.com/strefethen/heos-hub-go/internal/mediaplayer"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakeTransport struct {
	mu        sync.Mutex
	published []published
	handlers  map[string]MessageHandler
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: map[string]MessageHandler{}}
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (f *fakeTransport) Subscribe(topic string, qos byte, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Topics() Topics { return Topics{Prefix: "test"} }
func (f *fakeTransport) QoS() byte      { return 1 }

func (f *fakeTransport) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

type fakeCommander struct {
	mu       sync.Mutex
	requests []entities.CommandRequest
	err      error
}

func (f *fakeCommander) Execute(ctx context.Context, req entities.CommandRequest) (mediaplayer.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return mediaplayer.Snapshot{EntityID: req.EntityID}, f.err
}

type fakeSource struct {
	mu       sync.Mutex
	listener host.StateListener
}

func (f *fakeSource) Subscribe(listener host.StateListener) func() {
	f.mu.Lock()
	f.listener = listener
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.listener = nil
		f.mu.Unlock()
	}
}

func (f *fakeSource) emit(event host.StateEvent) {
	f.mu.Lock()
	listener := f.listener
	f.mu.Unlock()
	listener(event)
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "home/heos/"}
	require.Equal(t, "home/heos/system/status", topics.SystemStatus())
	require.Equal(t, "home/heos/state/media_player/player-1", topics.EntityState("player-1"))
	require.Equal(t, "home/heos/command/media_player/+", topics.AllEntityCommands())
	require.Equal(t, "home/heos/ack/media_player/group-2", topics.EntityAck("group-2"))

	id, err := topics.EntityIDFromCommand("home/heos/command/media_player/group-2")
	require.NoError(t, err)
	require.Equal(t, "group-2", id)

	_, err = topics.EntityIDFromCommand("home/heos/state/media_player/group-2")
	require.ErrorIs(t, err, ErrUnknownTopicShape)
	_, err = topics.EntityIDFromCommand("home/heos/command/media_player/a/b")
	require.ErrorIs(t, err, ErrUnknownTopicShape)

	require.Equal(t, "heoshub/system/status", Topics{}.SystemStatus())
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{Host: "broker.local", Port: 8883, TLS: true, ClientID: "hub-1", Username: "u", Password: "p", QoS: 1}
	opts := buildClientOptions(cfg)
	configureLWT(opts, Topics{Prefix: "heoshub"}, cfg.ClientID)

	require.Len(t, opts.Servers, 1)
	require.Equal(t, "ssl://broker.local:8883", opts.Servers[0].String())
	require.Equal(t, "hub-1", opts.ClientID)
	require.Equal(t, "u", opts.Username)
	require.True(t, opts.AutoReconnect)
	require.NotNil(t, opts.TLSConfig)
	require.True(t, opts.WillEnabled)
	require.True(t, opts.WillRetained)
	require.Equal(t, "heoshub/system/status", opts.WillTopic)
	require.Contains(t, string(opts.WillPayload), `"status":"offline"`)
}

func TestBridgePublishesRetainedState(t *testing.T) {
	transport := newFakeTransport()
	source := &fakeSource{}
	bridge := NewBridge(transport, &fakeCommander{}, source, quietLogger())
	require.NoError(t, bridge.Start())
	t.Cleanup(bridge.Stop)

	source.emit(host.StateEvent{EntityID: "player-1", State: map[string]any{"state": "playing"}, Available: true})
	source.emit(host.StateEvent{EntityID: "player-1", Removed: true})

	require.Eventually(t, func() bool { return len(transport.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	msgs := transport.snapshot()

	require.Equal(t, "test/state/media_player/player-1", msgs[0].topic)
	require.True(t, msgs[0].retained)
	require.JSONEq(t, `{"state":"playing"}`, string(msgs[0].payload))

	require.True(t, msgs[1].retained)
	require.Empty(t, msgs[1].payload)
}

func TestBridgeRoutesCommands(t *testing.T) {
	transport := newFakeTransport()
	commander := &fakeCommander{}
	bridge := NewBridge(transport, commander, &fakeSource{}, quietLogger())
	require.NoError(t, bridge.Start())
	t.Cleanup(bridge.Stop)

	handler := transport.handlers["test/command/media_player/+"]
	require.NotNil(t, handler)

	err := handler("test/command/media_player/group-2", []byte(`{"command":"volume_set","volume_level":0.3,"request_id":"r-1"}`))
	require.NoError(t, err)

	require.Len(t, commander.requests, 1)
	req := commander.requests[0]
	require.Equal(t, "group-2", req.EntityID)
	require.Equal(t, "volume_set", req.Command)
	require.Equal(t, "mqtt", req.Origin)
	require.Equal(t, "r-1", req.RequestID)
	require.InDelta(t, 0.3, *req.Args.VolumeLevel, 1e-9)

	msgs := transport.snapshot()
	require.Len(t, msgs, 1)
	require.Equal(t, "test/ack/media_player/group-2", msgs[0].topic)
	require.False(t, msgs[0].retained)
	var ack Ack
	require.NoError(t, json.Unmarshal(msgs[0].payload, &ack))
	require.Equal(t, "ok", ack.Status)
	require.Equal(t, "r-1", ack.RequestID)
}

func TestBridgeCommandErrors(t *testing.T) {
	transport := newFakeTransport()
	commander := &fakeCommander{err: errors.New("device offline")}
	bridge := NewBridge(transport, commander, &fakeSource{}, quietLogger())
	require.NoError(t, bridge.Start())
	t.Cleanup(bridge.Stop)
	handler := transport.handlers["test/command/media_player/+"]

	require.ErrorIs(t, handler("test/command/media_player/p", []byte(`not json`)), ErrInvalidCommand)
	require.ErrorIs(t, handler("test/command/media_player/p", []byte(`{}`)), ErrInvalidCommand)
	require.Empty(t, commander.requests)

	err := handler("test/command/media_player/p", []byte(`{"command":"media_play"}`))
	require.ErrorContains(t, err, "device offline")

	msgs := transport.snapshot()
	require.Len(t, msgs, 1)
	require.True(t, strings.Contains(string(msgs[0].payload), `"status":"error"`))
	require.NotEmpty(t, commander.requests[0].RequestID)
}

func TestBridgeStopIsIdempotent(t *testing.T) {
	bridge := NewBridge(newFakeTransport(), &fakeCommander{}, &fakeSource{}, quietLogger())
	require.NoError(t, bridge.Start())
	bridge.Stop()
	bridge.Stop()
}
