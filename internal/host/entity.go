package host

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrHostStopped    = errors.New("host stopped")
)

// Entity is anything the host can register, render and route commands to.
type Entity interface {
	EntityID() string
	Name() string
	// ShouldPoll reports whether the host poller must call Update on a schedule.
	// Push-driven entities return false.
	ShouldPoll() bool
	Available() bool
}

// Renderer produces the entity's current state for listeners.
type Renderer interface {
	Render() any
}

// Updater refreshes an entity from its backing device.
type Updater interface {
	Update(ctx context.Context) error
}

// Lifecycle hooks run when an entity joins or leaves the registry.
type Lifecycle interface {
	AddedToHost()
	WillRemoveFromHost()
}

// Describer supplies registry metadata for an entity.
type Describer interface {
	Describe() Descriptor
}

// Descriptor is the persisted identity of an entity.
type Descriptor struct {
	Platform string
	Kind     string
	DeviceID int
}

// AddEntitiesFunc registers a batch of entities with the host.
type AddEntitiesFunc func(entities []Entity)

// StateEvent is delivered to listeners whenever an entity re-renders or is removed.
type StateEvent struct {
	EntityID  string
	State     any
	Available bool
	Removed   bool
	UpdatedAt time.Time
}

// StateListener receives state events from the host dispatcher goroutine.
// Implementations must not block.
type StateListener func(StateEvent)
