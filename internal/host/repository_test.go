package host

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/heos-hub-go/internal/db"
)

func TestRepositoryUpsertKeepsFirstSeen(t *testing.T) {
	pair, err := db.Init(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })
	repo := NewRepository(pair)

	first := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(RegistryEntry{
		EntityID: "player-1", Platform: "heos", Kind: "player", DeviceID: 1, Name: "Kitchen",
		FirstSeenAt: first, LastSeenAt: first,
	}))

	later := first.Add(time.Hour)
	require.NoError(t, repo.MarkRemoved("player-1", later))

	entries, err := repo.List(false)
	require.NoError(t, err)
	require.Empty(t, entries)

	entries, err = repo.List(true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].RemovedAt)

	require.NoError(t, repo.Upsert(RegistryEntry{
		EntityID: "player-1", Platform: "heos", Kind: "player", DeviceID: 1, Name: "Kitchen Speaker",
		FirstSeenAt: later, LastSeenAt: later,
	}))

	entry, err := repo.Get("player-1")
	require.NoError(t, err)
	require.Equal(t, "Kitchen Speaker", entry.Name)
	require.True(t, entry.FirstSeenAt.Equal(first))
	require.True(t, entry.LastSeenAt.Equal(later))
	require.Nil(t, entry.RemovedAt)

	missing, err := repo.Get("group-9")
	require.NoError(t, err)
	require.Nil(t, missing)
}
