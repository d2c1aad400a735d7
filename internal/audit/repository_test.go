package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/heos-hub-go/internal/db"
)

func setupTestDB(t *testing.T) *db.DBPair {
	t.Helper()

	dbPair, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })
	return dbPair
}

func strPtr(s string) *string { return &s }

func TestRepository_InsertEvent(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	event, err := repo.InsertEvent(WriteEventInput{
		Type:      string(EventCommandDispatched),
		RequestID: strPtr("req-123"),
		EntityID:  strPtr("player-1"),
		Message:   "media_play dispatched",
		Payload:   map[string]any{"command": "media_play"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, event.EventID)
	require.Equal(t, EventLevelInfo, event.Level)
	require.Equal(t, "req-123", *event.RequestID)
	require.Equal(t, "player-1", *event.EntityID)
	require.Nil(t, event.DeviceID)
	require.Equal(t, "media_play", event.Payload["command"])
	require.False(t, event.Timestamp.IsZero())
}

func TestRepository_InsertEvent_NilPayload(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	level := EventLevelWarn
	event, err := repo.InsertEvent(WriteEventInput{
		Type:    string(EventSystemStartup),
		Level:   &level,
		Message: "No payload",
	})
	require.NoError(t, err)
	require.Equal(t, EventLevelWarn, event.Level)
	require.NotNil(t, event.Payload)
	require.Empty(t, event.Payload)
}

func TestRepository_GetEvent_NotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	event, err := repo.GetEvent("missing")
	require.NoError(t, err)
	require.Nil(t, event)
}

func TestRepository_QueryEvents_Filters(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, id := range []string{"player-1", "player-2", "player-1"} {
		_, err := repo.InsertEvent(WriteEventInput{
			Type:     string(EventCommandDispatched),
			EntityID: strPtr(id),
			Message:  "dispatched",
		})
		require.NoError(t, err)
	}
	_, err := repo.InsertEvent(WriteEventInput{Type: string(EventSystemStartup), Message: "boot"})
	require.NoError(t, err)

	events, total, err := repo.QueryEvents(EventQueryFilters{EntityID: strPtr("player-1")})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, events, 2)
	require.True(t, events[0].Timestamp.After(events[1].Timestamp), "newest first")

	commandType := string(EventCommandDispatched)
	events, total, err = repo.QueryEvents(EventQueryFilters{Type: &commandType, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, events, 1)

	start := base.Add(3 * time.Minute)
	events, _, err = repo.QueryEvents(EventQueryFilters{StartDate: &start})
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestRepository_Prune(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return old }
	_, err := repo.InsertEvent(WriteEventInput{Type: string(EventSystemStartup), Message: "old"})
	require.NoError(t, err)

	repo.now = time.Now
	_, err = repo.InsertEvent(WriteEventInput{Type: string(EventSystemStartup), Message: "new"})
	require.NoError(t, err)

	deleted, err := repo.Prune(time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	events, total, err := repo.QueryEvents(EventQueryFilters{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "new", events[0].Message)
}
