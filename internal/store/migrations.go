package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "agents and projects",
		SQL: `
CREATE TABLE agents (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    definition_path TEXT,
    signing_key     TEXT,
    created_at      INTEGER NOT NULL
);

CREATE TABLE projects (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    path       TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "memories: append-only memory log",
		SQL: `
CREATE TABLE memories (
    id                 TEXT PRIMARY KEY,
    agent_id           TEXT NOT NULL,
    region             TEXT NOT NULL CHECK (region IN ('AGENT', 'PROJECT')),
    project_id         TEXT,
    kind               TEXT NOT NULL CHECK (kind IN ('EMOTIONAL', 'ARCHITECTURAL', 'LEARNINGS', 'ACHIEVEMENTS')),

    -- content is rewritten by decay; original_content never changes
    content            TEXT NOT NULL,
    original_content   TEXT NOT NULL,

    impact             TEXT NOT NULL CHECK (impact IN ('LOW', 'MEDIUM', 'HIGH', 'CRITICAL')),
    confidence         REAL NOT NULL DEFAULT 1.0 CHECK (confidence >= 0.0 AND confidence <= 1.0),

    created_at         INTEGER NOT NULL,
    last_accessed      INTEGER NOT NULL,

    previous_memory_id TEXT,
    version            INTEGER NOT NULL DEFAULT 1,
    superseded_by      TEXT,

    signature          TEXT,
    token_count        INTEGER NOT NULL DEFAULT 0,

    CHECK ((region = 'AGENT' AND project_id IS NULL) OR (region = 'PROJECT' AND project_id IS NOT NULL)),

    FOREIGN KEY (agent_id) REFERENCES agents(id),
    FOREIGN KEY (project_id) REFERENCES projects(id),
    FOREIGN KEY (previous_memory_id) REFERENCES memories(id),
    FOREIGN KEY (superseded_by) REFERENCES memories(id)
);

CREATE INDEX idx_memories_active  ON memories(agent_id, superseded_by);
CREATE INDEX idx_memories_chain   ON memories(agent_id, kind, region, project_id, created_at DESC);
CREATE INDEX idx_memories_project ON memories(project_id);
`,
	},
	{
		Version:     3,
		Description: "memories: append-only and immutability guards",
		SQL: `
CREATE TRIGGER memories_no_delete BEFORE DELETE ON memories
BEGIN
    SELECT RAISE(ABORT, 'memories are append-only');
END;

CREATE TRIGGER memories_immutable BEFORE UPDATE ON memories
WHEN NEW.id IS NOT OLD.id
  OR NEW.agent_id IS NOT OLD.agent_id
  OR NEW.region IS NOT OLD.region
  OR NEW.project_id IS NOT OLD.project_id
  OR NEW.kind IS NOT OLD.kind
  OR NEW.original_content IS NOT OLD.original_content
  OR NEW.impact IS NOT OLD.impact
  OR NEW.created_at IS NOT OLD.created_at
  OR NEW.previous_memory_id IS NOT OLD.previous_memory_id
  OR (OLD.signature IS NOT NULL AND NEW.signature IS NOT OLD.signature)
  OR (OLD.superseded_by IS NOT NULL AND NEW.superseded_by IS NOT OLD.superseded_by)
BEGIN
    SELECT RAISE(ABORT, 'immutable memory field');
END;
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
