package audit

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Default configuration values
const (
	DefaultRetentionDays   = 90
	DefaultPruneInterval   = 24 * time.Hour
	DefaultQueryLimit      = 100
	MaxQueryLimit          = 1000
	MaxConsecutiveFailures = 3
)

// Service provides audit log management functionality.
type Service struct {
	logger              *log.Logger
	repo                *Repository
	retentionDays       int
	pruneInterval       time.Duration
	now                 func() time.Time
	stopCh              chan struct{}
	stopOnce            sync.Once
	wg                  sync.WaitGroup
	healthMu            sync.RWMutex
	healthy             bool
	consecutiveFailures int
}

// NewService creates a new audit service. retentionDays <= 0 selects the default.
func NewService(dbPair DBPair, retentionDays int, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	return &Service{
		logger:        logger,
		repo:          NewRepository(dbPair),
		retentionDays: retentionDays,
		pruneInterval: DefaultPruneInterval,
		now:           time.Now,
		stopCh:        make(chan struct{}),
		healthy:       true,
	}
}

// RecordEvent writes a new audit event.
func (s *Service) RecordEvent(input WriteEventInput) (*AuditEvent, error) {
	if input.Level == nil {
		level := EventLevelInfo
		input.Level = &level
	}

	event, err := s.repo.InsertEvent(input)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to record audit event: %w", err)
	}

	s.recordSuccess()
	return event, nil
}

// Log records an entity-scoped event. Storage failures are logged, not returned.
func (s *Service) Log(eventType EventType, level EventLevel, entityID, message string, payload map[string]any) {
	input := WriteEventInput{
		Type:    string(eventType),
		Level:   &level,
		Message: message,
		Payload: payload,
	}
	if entityID != "" {
		input.EntityID = &entityID
	}
	if _, err := s.RecordEvent(input); err != nil {
		s.logger.Printf("AUDIT: %v", err)
	}
}

// QueryEvents retrieves events with filters and pagination.
// Returns: events, total count, hasMore flag, error.
func (s *Service) QueryEvents(filters EventQueryFilters) ([]AuditEvent, int, bool, error) {
	if filters.Limit == 0 {
		filters.Limit = DefaultQueryLimit
	}
	if filters.Limit > MaxQueryLimit {
		filters.Limit = MaxQueryLimit
	}

	events, total, err := s.repo.QueryEvents(filters)
	if err != nil {
		s.recordFailure()
		return nil, 0, false, fmt.Errorf("failed to query audit events: %w", err)
	}

	s.recordSuccess()
	hasMore := filters.Offset+len(events) < total
	return events, total, hasMore, nil
}

// GetEvent retrieves a single event by ID.
func (s *Service) GetEvent(eventID string) (*AuditEvent, error) {
	event, err := s.repo.GetEvent(eventID)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	s.recordSuccess()

	if event == nil {
		return nil, &EventNotFoundError{EventID: eventID}
	}
	return event, nil
}

// StartPruneJob runs a prune immediately and then every pruneInterval.
func (s *Service) StartPruneJob() {
	s.logger.Printf("AUDIT: prune job started (interval: %v, retention: %d days)", s.pruneInterval, s.retentionDays)

	s.wg.Add(1)
	go s.runPruneLoop()
}

// StopPruneJob stops the background prune job. Safe to call more than once.
func (s *Service) StopPruneJob() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Service) runPruneLoop() {
	defer s.wg.Done()

	s.pruneAndLog()

	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.pruneAndLog()
		}
	}
}

func (s *Service) pruneAndLog() {
	count, err := s.Prune()
	if err != nil {
		s.logger.Printf("AUDIT: prune failed: %v", err)
		return
	}
	if count > 0 {
		s.logger.Printf("AUDIT: pruned %d events", count)
	}
}

// Prune removes events older than the retention window.
func (s *Service) Prune() (int64, error) {
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	count, err := s.repo.Prune(cutoff)
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}

	s.recordSuccess()
	return count, nil
}

// IsHealthy returns current health status.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

func (s *Service) recordSuccess() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures = 0
	s.healthy = true
}

// recordFailure marks the service unhealthy after MaxConsecutiveFailures.
func (s *Service) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}

// EventNotFoundError is returned when an audit event is not found.
type EventNotFoundError struct {
	EventID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("audit event not found: %s", e.EventID)
}
