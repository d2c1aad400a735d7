package host

import (
	"database/sql"
	"errors"
	"time"
)

const registryTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// RegistryEntry is a persisted entity record. Removed entities keep their
// row with RemovedAt set until they are registered again.
type RegistryEntry struct {
	EntityID    string     `json:"entity_id"`
	Platform    string     `json:"platform"`
	Kind        string     `json:"kind"`
	DeviceID    int        `json:"device_id"`
	Name        string     `json:"name"`
	FirstSeenAt time.Time  `json:"first_seen_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	RemovedAt   *time.Time `json:"removed_at,omitempty"`
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository stores the entity registry in SQLite.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a registry Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// Upsert inserts an entry or refreshes an existing one, keeping first_seen_at.
func (r *Repository) Upsert(entry RegistryEntry) error {
	_, err := r.writer.Exec(`
		INSERT INTO entity_registry (entity_id, platform, kind, device_id, name, first_seen_at, last_seen_at, removed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(entity_id) DO UPDATE SET
			platform = excluded.platform,
			kind = excluded.kind,
			device_id = excluded.device_id,
			name = excluded.name,
			last_seen_at = excluded.last_seen_at,
			removed_at = NULL
	`, entry.EntityID, entry.Platform, entry.Kind, entry.DeviceID, entry.Name,
		formatRegistryTime(entry.FirstSeenAt), formatRegistryTime(entry.LastSeenAt))
	return err
}

// MarkRemoved stamps removed_at on an entry.
func (r *Repository) MarkRemoved(entityID string, at time.Time) error {
	_, err := r.writer.Exec(`UPDATE entity_registry SET removed_at = ? WHERE entity_id = ?`, formatRegistryTime(at), entityID)
	return err
}

// Get returns one entry, or nil if it was never registered.
func (r *Repository) Get(entityID string) (*RegistryEntry, error) {
	row := r.reader.QueryRow(`
		SELECT entity_id, platform, kind, device_id, name, first_seen_at, last_seen_at, removed_at
		FROM entity_registry WHERE entity_id = ?
	`, entityID)
	entry, err := scanRegistryEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// List returns entries ordered by first sighting.
func (r *Repository) List(includeRemoved bool) ([]RegistryEntry, error) {
	query := `
		SELECT entity_id, platform, kind, device_id, name, first_seen_at, last_seen_at, removed_at
		FROM entity_registry`
	if !includeRemoved {
		query += ` WHERE removed_at IS NULL`
	}
	query += ` ORDER BY first_seen_at, entity_id`

	rows, err := r.reader.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []RegistryEntry{}
	for rows.Next() {
		entry, err := scanRegistryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistryEntry(row rowScanner) (*RegistryEntry, error) {
	var entry RegistryEntry
	var deviceID sql.NullInt64
	var firstSeen, lastSeen string
	var removed sql.NullString

	if err := row.Scan(&entry.EntityID, &entry.Platform, &entry.Kind, &deviceID, &entry.Name, &firstSeen, &lastSeen, &removed); err != nil {
		return nil, err
	}
	entry.DeviceID = int(deviceID.Int64)
	entry.FirstSeenAt, _ = time.Parse(registryTimeLayout, firstSeen)
	entry.LastSeenAt, _ = time.Parse(registryTimeLayout, lastSeen)
	if removed.Valid {
		removedAt, err := time.Parse(registryTimeLayout, removed.String)
		if err == nil {
			entry.RemovedAt = &removedAt
		}
	}
	return &entry, nil
}

func formatRegistryTime(t time.Time) string {
	return t.UTC().Format(registryTimeLayout)
}
