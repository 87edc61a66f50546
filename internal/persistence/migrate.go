package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// A migration brings the schema from version-1 up to Version. Statements
// must tolerate running twice (existence-checked creates): if a previous
// run applied the schema but died before recording the version, the next
// run re-applies it.
type migration struct {
	Version    int
	Statements []string
}

// migrations shipped to date, ascending. Append-only: a step is frozen once
// a released database may have recorded its version.
var migrations = []migration{
	{
		Version: 1,
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				seq INTEGER NOT NULL,
				ts INTEGER NOT NULL,
				actor TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				payload TEXT NOT NULL DEFAULT '{}',
				UNIQUE (workspace_id, seq)
			);`,
			`CREATE INDEX IF NOT EXISTS idx_events_entity
				ON events(workspace_id, entity_type, entity_id, seq);`,
			`CREATE INDEX IF NOT EXISTS idx_events_workspace
				ON events(workspace_id, seq);`,
			`CREATE TABLE IF NOT EXISTS coworkers (
				id TEXT NOT NULL,
				workspace_id TEXT NOT NULL,
				name TEXT NOT NULL,
				description TEXT,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				deleted_at INTEGER,
				PRIMARY KEY (workspace_id, id)
			);`,
			`CREATE INDEX IF NOT EXISTS idx_coworkers_active
				ON coworkers(workspace_id, deleted_at);`,
		},
	},
}

// targetVersion is the schema version a fully migrated database reports.
func targetVersion() int {
	return migrations[len(migrations)-1].Version
}

// schemaVersion reads the version counter from the database header. It is
// stored via PRAGMA user_version, not a regular table, and defaults to 0
// for a brand-new file.
func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// runMigrations brings db up to the current target schema version inside a
// single transaction. Calling it on an up-to-date database is a no-op, so
// it is safe to run on every open. Any failure rolls the whole batch back
// and leaves the recorded version untouched; the caller must treat that as
// fatal for the workspace.
func runMigrations(ctx context.Context, db *sql.DB) (from, to int, err error) {
	current, err := schemaVersion(db)
	if err != nil {
		return 0, 0, err
	}

	target := targetVersion()
	if current >= target {
		return current, current, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return current, current, fmt.Errorf("begin migration: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		for _, stmt := range m.Statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return current, current, fmt.Errorf("migration step %d: %w", m.Version, err)
			}
		}
	}

	// PRAGMA does not take bind parameters; target is our own constant.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, target)); err != nil {
		_ = tx.Rollback()
		return current, current, fmt.Errorf("record schema version %d: %w", target, err)
	}

	if err := tx.Commit(); err != nil {
		return current, current, fmt.Errorf("commit migration: %w", err)
	}

	return current, target, nil
}
