package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timestampLayout sorts lexically in the same order as time.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// AuditEvent represents a single audit event.
type AuditEvent struct {
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Level     EventLevel     `json:"level"`
	RequestID *string        `json:"request_id,omitempty"`
	EntityID  *string        `json:"entity_id,omitempty"`
	DeviceID  *string        `json:"device_id,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload"`
}

// WriteEventInput contains the fields for creating a new audit event.
type WriteEventInput struct {
	Type      string         `json:"type"`
	Level     *EventLevel    `json:"level,omitempty"`
	RequestID *string        `json:"request_id,omitempty"`
	EntityID  *string        `json:"entity_id,omitempty"`
	DeviceID  *string        `json:"device_id,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventQueryFilters contains optional filters for querying events.
type EventQueryFilters struct {
	Type      *string
	Level     *EventLevel
	StartDate *time.Time
	EndDate   *time.Time
	RequestID *string
	EntityID  *string
	DeviceID  *string
	Limit     int
	Offset    int
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for audit events.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
	now    func() time.Time
}

// NewRepository creates a new audit Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer(), now: time.Now}
}

// InsertEvent writes a new audit event. Level defaults to INFO.
func (r *Repository) InsertEvent(input WriteEventInput) (*AuditEvent, error) {
	eventID := uuid.NewString()
	timestamp := r.now().UTC().Format(timestampLayout)

	level := EventLevelInfo
	if input.Level != nil {
		level = *input.Level
	}

	payload := input.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	_, err = r.writer.Exec(`
		INSERT INTO audit_events (event_id, timestamp, type, level, request_id, entity_id, device_id, message, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventID, timestamp, input.Type, string(level), input.RequestID, input.EntityID, input.DeviceID, input.Message, string(payloadJSON))
	if err != nil {
		return nil, err
	}

	return r.getEvent(r.writer, eventID)
}

// GetEvent retrieves a single event by ID. Returns nil, nil if not found.
func (r *Repository) GetEvent(eventID string) (*AuditEvent, error) {
	return r.getEvent(r.reader, eventID)
}

func (r *Repository) getEvent(conn *sql.DB, eventID string) (*AuditEvent, error) {
	row := conn.QueryRow(`
		SELECT event_id, timestamp, type, level, request_id, entity_id, device_id, message, payload
		FROM audit_events
		WHERE event_id = ?
	`, eventID)

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// QueryEvents retrieves events matching filters, newest first.
// Returns events and the total count ignoring pagination.
func (r *Repository) QueryEvents(filters EventQueryFilters) ([]AuditEvent, int, error) {
	whereClause, args := buildWhereClause(filters)

	var total int
	if err := r.reader.QueryRow("SELECT COUNT(*) FROM audit_events "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := `
		SELECT event_id, timestamp, type, level, request_id, entity_id, device_id, message, payload
		FROM audit_events
		` + whereClause + `
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.reader.Query(query, append(args, limit, filters.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// Prune deletes events older than the cutoff time and returns the number removed.
func (r *Repository) Prune(cutoff time.Time) (int64, error) {
	result, err := r.writer.Exec(`DELETE FROM audit_events WHERE timestamp < ?`, cutoff.UTC().Format(timestampLayout))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func buildWhereClause(filters EventQueryFilters) (string, []any) {
	conditions := []string{}
	args := []any{}

	if filters.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, *filters.Type)
	}
	if filters.Level != nil {
		conditions = append(conditions, "level = ?")
		args = append(args, string(*filters.Level))
	}
	if filters.RequestID != nil {
		conditions = append(conditions, "request_id = ?")
		args = append(args, *filters.RequestID)
	}
	if filters.EntityID != nil {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, *filters.EntityID)
	}
	if filters.DeviceID != nil {
		conditions = append(conditions, "device_id = ?")
		args = append(args, *filters.DeviceID)
	}
	if filters.StartDate != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filters.StartDate.UTC().Format(timestampLayout))
	}
	if filters.EndDate != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filters.EndDate.UTC().Format(timestampLayout))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*AuditEvent, error) {
	var event AuditEvent
	var timestamp, level, payloadJSON string
	var requestID, entityID, deviceID sql.NullString

	if err := row.Scan(
		&event.EventID,
		&timestamp,
		&event.Type,
		&level,
		&requestID,
		&entityID,
		&deviceID,
		&event.Message,
		&payloadJSON,
	); err != nil {
		return nil, err
	}

	parsed, err := time.Parse(timestampLayout, timestamp)
	if err != nil {
		parsed, _ = time.Parse(time.RFC3339, timestamp)
	}
	event.Timestamp = parsed
	event.Level = EventLevel(level)

	if requestID.Valid {
		event.RequestID = &requestID.String
	}
	if entityID.Valid {
		event.EntityID = &entityID.String
	}
	if deviceID.Valid {
		event.DeviceID = &deviceID.String
	}

	if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
		return nil, err
	}

	return &event, nil
}
