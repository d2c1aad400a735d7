package host

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strefethen/heos-hub-go/internal/audit"
)

// Default runtime sizing.
const (
	DefaultExecutorWorkers   = 4
	DefaultExecutorQueueSize = 64
	DefaultUpdateQueueSize   = 256
)

// Store persists registry metadata.
type Store interface {
	Upsert(entry RegistryEntry) error
	MarkRemoved(entityID string, at time.Time) error
}

// Auditor records registry changes in the audit trail.
type Auditor interface {
	Log(eventType audit.EventType, level audit.EventLevel, entityID, message string, payload map[string]any)
}

// Options configures a Host. Zero values select defaults; a nil Store or
// Auditor disables persistence or auditing.
type Options struct {
	Logger            *log.Logger
	Store             Store
	Auditor           Auditor
	ExecutorWorkers   int
	ExecutorQueueSize int
	UpdateQueueSize   int
	// PollSchedule is a cron spec for polling entities. Empty disables polling.
	PollSchedule string
}

// Stats summarizes host activity.
type Stats struct {
	Entities          int           `json:"entities"`
	AvailableEntities int           `json:"available_entities"`
	Listeners         int           `json:"listeners"`
	PendingUpdates    int           `json:"pending_updates"`
	DroppedUpdates    int64         `json:"dropped_updates"`
	Renders           int64         `json:"renders"`
	Executor          ExecutorStats `json:"executor"`
}

type registration struct {
	entity Entity
	cmdMu  sync.Mutex
	last   *StateEvent
}

// Host owns the entity registry, the update channel, background tasks and
// the executor worker pool.
type Host struct {
	logger   *log.Logger
	store    Store
	auditor  Auditor
	executor *Executor
	poller   *Poller
	now      func() time.Time

	mu           sync.RWMutex
	entities     map[string]*registration
	order        []string
	listeners    map[int]StateListener
	nextListener int

	pendingMu sync.Mutex
	pending   map[string]struct{}
	updates   chan string

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	lifecycleMu    sync.RWMutex
	started        bool
	stopped        bool
	dispatcherDone chan struct{}

	dropped atomic.Int64
	renders atomic.Int64
}

// New builds a Host. Call Start to begin dispatching updates.
func New(opts Options) (*Host, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	workers := opts.ExecutorWorkers
	if workers <= 0 {
		workers = DefaultExecutorWorkers
	}
	queueSize := opts.ExecutorQueueSize
	if queueSize <= 0 {
		queueSize = DefaultExecutorQueueSize
	}
	updateQueue := opts.UpdateQueueSize
	if updateQueue <= 0 {
		updateQueue = DefaultUpdateQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		logger:         logger,
		store:          opts.Store,
		auditor:        opts.Auditor,
		now:            time.Now,
		entities:       make(map[string]*registration),
		listeners:      make(map[int]StateListener),
		pending:        make(map[string]struct{}),
		updates:        make(chan string, updateQueue),
		ctx:            ctx,
		cancel:         cancel,
		dispatcherDone: make(chan struct{}),
	}

	if opts.PollSchedule != "" {
		poller, err := NewPoller(opts.PollSchedule, h.pollOnce, logger)
		if err != nil {
			cancel()
			return nil, err
		}
		h.poller = poller
	}

	h.executor = NewExecutor(workers, queueSize, logger)
	return h, nil
}

// Start launches the update dispatcher and the poller.
func (h *Host) Start() {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()
	if h.started || h.stopped {
		return
	}
	h.started = true

	go h.runDispatcher()
	if h.poller != nil {
		h.poller.Start()
	}
	h.logger.Printf("HOST: started")
}

// Stop cancels background tasks and waits for them and the executor to drain.
func (h *Host) Stop(ctx context.Context) error {
	h.lifecycleMu.Lock()
	if h.stopped {
		h.lifecycleMu.Unlock()
		return nil
	}
	h.stopped = true
	started := h.started
	h.lifecycleMu.Unlock()

	if h.poller != nil {
		h.poller.Stop()
	}
	h.cancel()
	if started {
		<-h.dispatcherDone
	}

	done := make(chan struct{})
	go func() {
		h.tasks.Wait()
		h.executor.Close()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Printf("HOST: stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("host stop: %w", ctx.Err())
	}
}

// AddEntities registers a batch of entities. Duplicate ids are skipped.
func (h *Host) AddEntities(batch []Entity) {
	added := make([]Entity, 0, len(batch))

	h.mu.Lock()
	for _, entity := range batch {
		if entity == nil {
			continue
		}
		id := entity.EntityID()
		if _, exists := h.entities[id]; exists {
			h.logger.Printf("HOST: entity %s already registered, skipping", id)
			continue
		}
		h.entities[id] = &registration{entity: entity}
		h.order = append(h.order, id)
		added = append(added, entity)
	}
	h.mu.Unlock()

	for _, entity := range added {
		h.persist(entity)
		if lifecycle, ok := entity.(Lifecycle); ok {
			lifecycle.AddedToHost()
		}
		h.ScheduleUpdate(entity.EntityID())
	}
	if len(added) > 0 {
		h.logger.Printf("HOST: registered %d entities", len(added))
	}
}

// RemoveEntity unregisters an entity and notifies listeners.
func (h *Host) RemoveEntity(entityID string) error {
	h.mu.Lock()
	reg, ok := h.entities[entityID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	delete(h.entities, entityID)
	for i, id := range h.order {
		if id == entityID {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.mu.Unlock()

	if lifecycle, ok := reg.entity.(Lifecycle); ok {
		lifecycle.WillRemoveFromHost()
	}

	now := h.now()
	if h.store != nil {
		if err := h.store.MarkRemoved(entityID, now); err != nil {
			h.logger.Printf("HOST: failed to mark %s removed: %v", entityID, err)
		}
	}
	if h.auditor != nil {
		h.auditor.Log(audit.EventEntityRemoved, audit.EventLevelInfo, entityID, "Entity removed", nil)
	}

	h.notify(StateEvent{EntityID: entityID, Removed: true, UpdatedAt: now})
	return nil
}

// Entity returns a registered entity.
func (h *Host) Entity(entityID string) (Entity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	reg, ok := h.entities[entityID]
	if !ok {
		return nil, false
	}
	return reg.entity, true
}

// Entities returns registered entities in registration order.
func (h *Host) Entities() []Entity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]Entity, 0, len(h.order))
	for _, id := range h.order {
		result = append(result, h.entities[id].entity)
	}
	return result
}

// State returns the last rendered state of an entity.
func (h *Host) State(entityID string) (StateEvent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	reg, ok := h.entities[entityID]
	if !ok || reg.last == nil {
		return StateEvent{}, false
	}
	return *reg.last, true
}

// Subscribe registers a listener. The returned function removes it.
func (h *Host) Subscribe(listener StateListener) func() {
	h.mu.Lock()
	id := h.nextListener
	h.nextListener++
	h.listeners[id] = listener
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// ScheduleUpdate asks the dispatcher to re-render an entity. It never blocks;
// requests for an entity that is already pending are coalesced.
func (h *Host) ScheduleUpdate(entityID string) {
	h.pendingMu.Lock()
	if _, ok := h.pending[entityID]; ok {
		h.pendingMu.Unlock()
		return
	}
	h.pending[entityID] = struct{}{}
	h.pendingMu.Unlock()

	select {
	case h.updates <- entityID:
	default:
		h.pendingMu.Lock()
		delete(h.pending, entityID)
		h.pendingMu.Unlock()
		h.dropped.Add(1)
		h.logger.Printf("HOST: update queue full, dropped update for %s", entityID)
	}
}

// CreateTask runs fn in the background until it returns or the host stops.
func (h *Host) CreateTask(name string, fn func(ctx context.Context) error) {
	h.lifecycleMu.RLock()
	defer h.lifecycleMu.RUnlock()
	if h.stopped {
		h.logger.Printf("HOST: task %s not started, host stopped", name)
		return
	}

	h.tasks.Add(1)
	go func() {
		defer h.tasks.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				h.logger.Printf("HOST: task %s panicked: %v", name, recovered)
			}
		}()
		if err := fn(h.ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Printf("HOST: task %s failed: %v", name, err)
		}
	}()
}

// AddExecutorJob submits blocking work to the worker pool. A nil error only
// confirms dispatch; the job's own result is logged and discarded. After Stop
// it returns ErrHostStopped.
func (h *Host) AddExecutorJob(job func() error) error {
	h.lifecycleMu.RLock()
	defer h.lifecycleMu.RUnlock()
	if h.stopped {
		return ErrHostStopped
	}
	return h.executor.Submit(job)
}

// Lock serializes commands for one entity. Callers must invoke the returned unlock.
func (h *Host) Lock(entityID string) (func(), error) {
	h.mu.RLock()
	reg, ok := h.entities[entityID]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	reg.cmdMu.Lock()
	return reg.cmdMu.Unlock, nil
}

// RefreshEntity updates an entity from its device when it supports that and
// schedules a render either way.
func (h *Host) RefreshEntity(ctx context.Context, entityID string) error {
	entity, ok := h.Entity(entityID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	if updater, ok := entity.(Updater); ok {
		if err := updater.Update(ctx); err != nil {
			return fmt.Errorf("refresh %s: %w", entityID, err)
		}
	}
	h.ScheduleUpdate(entityID)
	return nil
}

// Stats returns a snapshot of host counters.
func (h *Host) Stats() Stats {
	h.mu.RLock()
	stats := Stats{
		Entities:  len(h.entities),
		Listeners: len(h.listeners),
	}
	for _, reg := range h.entities {
		if reg.entity.Available() {
			stats.AvailableEntities++
		}
	}
	h.mu.RUnlock()

	h.pendingMu.Lock()
	stats.PendingUpdates = len(h.pending)
	h.pendingMu.Unlock()

	stats.DroppedUpdates = h.dropped.Load()
	stats.Renders = h.renders.Load()
	stats.Executor = h.executor.Stats()
	return stats
}

func (h *Host) runDispatcher() {
	defer close(h.dispatcherDone)
	for {
		select {
		case <-h.ctx.Done():
			return
		case entityID := <-h.updates:
			h.pendingMu.Lock()
			delete(h.pending, entityID)
			h.pendingMu.Unlock()
			h.render(entityID)
		}
	}
}

func (h *Host) render(entityID string) {
	h.mu.RLock()
	reg, ok := h.entities[entityID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	event, ok := h.renderEntity(reg.entity)
	if !ok {
		return
	}

	h.mu.Lock()
	if h.entities[entityID] != reg {
		h.mu.Unlock()
		return
	}
	reg.last = &event
	h.mu.Unlock()

	h.renders.Add(1)
	h.notify(event)
}

func (h *Host) renderEntity(entity Entity) (event StateEvent, ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			h.logger.Printf("HOST: render %s panicked: %v", entity.EntityID(), recovered)
			ok = false
		}
	}()

	event = StateEvent{
		EntityID:  entity.EntityID(),
		Available: entity.Available(),
		UpdatedAt: h.now(),
	}
	if renderer, isRenderer := entity.(Renderer); isRenderer {
		event.State = renderer.Render()
	}
	return event, true
}

func (h *Host) notify(event StateEvent) {
	h.mu.RLock()
	listeners := make([]StateListener, 0, len(h.listeners))
	for _, listener := range h.listeners {
		listeners = append(listeners, listener)
	}
	h.mu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if recovered := recover(); recovered != nil {
					h.logger.Printf("HOST: listener panicked on %s: %v", event.EntityID, recovered)
				}
			}()
			listener(event)
		}()
	}
}

func (h *Host) persist(entity Entity) {
	var desc Descriptor
	if describer, ok := entity.(Describer); ok {
		desc = describer.Describe()
	}

	if h.store != nil {
		now := h.now()
		err := h.store.Upsert(RegistryEntry{
			EntityID:    entity.EntityID(),
			Platform:    desc.Platform,
			Kind:        desc.Kind,
			DeviceID:    desc.DeviceID,
			Name:        entity.Name(),
			FirstSeenAt: now,
			LastSeenAt:  now,
		})
		if err != nil {
			h.logger.Printf("HOST: failed to persist %s: %v", entity.EntityID(), err)
		}
	}
	if h.auditor != nil {
		h.auditor.Log(audit.EventEntityRegistered, audit.EventLevelInfo, entity.EntityID(), "Entity registered", map[string]any{
			"name":      entity.Name(),
			"platform":  desc.Platform,
			"kind":      desc.Kind,
			"device_id": desc.DeviceID,
		})
	}
}

func (h *Host) pollOnce() {
	for _, entity := range h.Entities() {
		if !entity.ShouldPoll() {
			continue
		}
		if updater, ok := entity.(Updater); ok {
			if err := updater.Update(h.ctx); err != nil {
				h.logger.Printf("HOST: poll %s failed: %v", entity.EntityID(), err)
			}
		}
		h.ScheduleUpdate(entity.EntityID())
	}
}
