package db

const schemaSQL = `
-- ===========================================================================
-- ENTITY REGISTRY (host)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS entity_registry (
  entity_id TEXT PRIMARY KEY,
  platform TEXT NOT NULL,
  kind TEXT NOT NULL,
  name TEXT NOT NULL,
  first_seen_at TEXT NOT NULL,
  last_seen_at TEXT NOT NULL,
  removed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_entity_registry_platform ON entity_registry(platform);

-- ==========================================================================
-- AUDIT
-- ==========================================================================

CREATE TABLE IF NOT EXISTS audit_events (
  event_id TEXT PRIMARY KEY,
  timestamp TEXT NOT NULL,
  type TEXT NOT NULL,
  level TEXT NOT NULL,
  request_id TEXT,
  entity_id TEXT,
  message TEXT NOT NULL,
  payload TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(type);
CREATE INDEX IF NOT EXISTS idx_audit_events_level ON audit_events(level);
CREATE INDEX IF NOT EXISTS idx_audit_events_entity_id ON audit_events(entity_id) WHERE entity_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp_level ON audit_events(timestamp DESC, level);
`
