package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitCreatesSchemaAndMigrations(t *testing.T) {
	pair, err := Init(filepath.Join(t.TempDir(), "nested", "hub.db"))
	require.NoError(t, err)
	defer pair.Close()

	registry, err := tableColumns(pair.Writer(), "entity_registry")
	require.NoError(t, err)
	require.True(t, registry["entity_id"])
	require.True(t, registry["device_id"])

	audit, err := tableColumns(pair.Writer(), "audit_events")
	require.NoError(t, err)
	require.True(t, audit["entity_id"])
	require.True(t, audit["device_id"])
}

func TestInitIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")

	first, err := Init(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Init(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestInitRequiresPath(t *testing.T) {
	_, err := Init("")
	require.Error(t, err)
}
