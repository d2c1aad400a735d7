package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/entities"
	"github.com/strefethen/heos-hub-go/internal/host"
	"github.com/strefethen/heos-hub-go/internal/mediaplayer"
)

const (
	defaultQueueSize = 256
	commandTimeout   = 15 * time.Second
)

// Transport is the broker surface the bridge uses; *Client implements it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Topics() Topics
	QoS() byte
}

// Commander executes entity commands; *entities.Service implements it.
type Commander interface {
	Execute(ctx context.Context, req entities.CommandRequest) (mediaplayer.Snapshot, error)
}

// StateSource feeds state events; *host.Host implements it.
type StateSource interface {
	Subscribe(listener host.StateListener) func()
}

// CommandPayload is the JSON body accepted on command topics.
type CommandPayload struct {
	Command   string `json:"command"`
	RequestID string `json:"request_id,omitempty"`
	mediaplayer.Args
}

// Ack is published after every command.
type Ack struct {
	RequestID string `json:"request_id"`
	Command   string `json:"command"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Bridge mirrors entity state to retained topics and routes command topics
// into the shared command path.
type Bridge struct {
	transport Transport
	commander Commander
	source    StateSource
	logger    *log.Logger

	queue       chan host.StateEvent
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	unsubscribe func()
	started     bool
}

// NewBridge wires a bridge. Call Start to begin.
func NewBridge(transport Transport, commander Commander, source StateSource, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Default()
	}
	return &Bridge{
		transport: transport,
		commander: commander,
		source:    source,
		logger:    logger,
		queue:     make(chan host.StateEvent, defaultQueueSize),
		stopCh:    make(chan struct{}),
	}
}

// Start subscribes to command topics and host state events.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	topics := b.transport.Topics()
	if err := b.transport.Subscribe(topics.AllEntityCommands(), b.transport.QoS(), b.handleCommand); err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}

	b.wg.Add(1)
	go b.publishLoop()
	b.unsubscribe = b.source.Subscribe(b.enqueue)
	b.started = true
	b.logger.Printf("MQTT: bridge started on %s", topics.AllEntityCommands())
	return nil
}

// Stop detaches from the host and drains the publish loop.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	unsubscribe := b.unsubscribe
	b.mu.Unlock()

	unsubscribe()
	close(b.stopCh)
	b.wg.Wait()
}

// enqueue runs on the host dispatcher and must not block.
func (b *Bridge) enqueue(event host.StateEvent) {
	select {
	case b.queue <- event:
	default:
		b.logger.Printf("MQTT: %v, dropped state for %s", ErrBridgeQueueFull, event.EntityID)
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case event := <-b.queue:
			if err := b.publishState(event); err != nil {
				b.logger.Printf("MQTT: failed to publish state for %s: %v", event.EntityID, err)
			}
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bridge) publishState(event host.StateEvent) error {
	topic := b.transport.Topics().EntityState(event.EntityID)
	if event.Removed {
		// An empty retained message clears the broker's copy.
		return b.transport.Publish(topic, nil, b.transport.QoS(), true)
	}

	payload, err := json.Marshal(statePayload(event))
	if err != nil {
		return err
	}
	return b.transport.Publish(topic, payload, b.transport.QoS(), true)
}

func statePayload(event host.StateEvent) any {
	if event.State != nil {
		return event.State
	}
	return map[string]any{"entity_id": event.EntityID, "available": event.Available}
}

func (b *Bridge) handleCommand(topic string, payload []byte) error {
	topics := b.transport.Topics()
	entityID, err := topics.EntityIDFromCommand(topic)
	if err != nil {
		return err
	}

	var cmd CommandPayload
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if cmd.Command == "" {
		return fmt.Errorf("%w: command is required", ErrInvalidCommand)
	}
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	_, execErr := b.commander.Execute(ctx, entities.CommandRequest{
		EntityID:  entityID,
		Command:   cmd.Command,
		Args:      cmd.Args,
		RequestID: cmd.RequestID,
		Origin:    "mqtt",
	})

	ack := Ack{
		RequestID: cmd.RequestID,
		Command:   cmd.Command,
		Status:    "ok",
		Timestamp: api.FormatTime(time.Now()),
	}
	if execErr != nil {
		ack.Status = "error"
		ack.Error = execErr.Error()
	}

	body, err := json.Marshal(ack)
	if err != nil {
		return err
	}
	if err := b.transport.Publish(topics.EntityAck(entityID), body, b.transport.QoS(), false); err != nil {
		return errors.Join(execErr, err)
	}
	return execErr
}
