package sqlite

import (
	"context"
	"fmt"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 2

// migrate creates the schema. Every statement is idempotent.
func (s *Store) migrate(ctx context.Context) error {
	steps := []struct {
		name   string
		schema string
	}{
		{"events", eventsSchema},
		{"sessions", sessionsSchema},
		{"open session index", openSessionSchema},
		{"member_snapshots", memberSnapshotsSchema},
		{"game_snapshots", gameSnapshotsSchema},
		{"metadata", metadataSchema},
	}
	for _, step := range steps {
		if _, err := s.db.ExecContext(ctx, step.schema); err != nil {
			return fmt.Errorf("create %s table: %w", step.name, err)
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)`,
		fmt.Sprint(CurrentSchemaVersion),
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

const eventsSchema = `
CREATE TABLE IF NOT EXISTS events (
	id             INTEGER PRIMARY KEY,
	name           TEXT NOT NULL,
	start_time     TEXT NOT NULL,
	end_time       TEXT NOT NULL,
	timezone       TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	is_active      BOOLEAN NOT NULL DEFAULT 0,
	is_hidden      BOOLEAN NOT NULL DEFAULT 0,
	guild_scope_id TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_scope_active ON events(guild_scope_id, is_active);
CREATE INDEX IF NOT EXISTS idx_events_scope_created ON events(guild_scope_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_one_active ON events(guild_scope_id) WHERE is_active;
`

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               INTEGER PRIMARY KEY,
	user_id          TEXT NOT NULL,
	game_name        TEXT NOT NULL,
	start_time       TEXT NOT NULL,
	end_time         TEXT,
	duration_minutes INTEGER,
	event_id         INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sessions_event_start ON sessions(event_id, start_time);
`

// openSessionSchema replaces the version 1 open-session index with a unique
// one. Older databases may hold several open rows for a pair; all but the
// newest are closed at the newest row's start first.
const openSessionSchema = `
DROP INDEX IF EXISTS idx_sessions_open;

UPDATE sessions SET
	end_time = (
		SELECT MAX(n.start_time) FROM sessions n
		WHERE n.user_id = sessions.user_id AND n.game_name = sessions.game_name AND n.end_time IS NULL
	),
	duration_minutes = MAX(0, CAST(ROUND((julianday((
		SELECT MAX(n.start_time) FROM sessions n
		WHERE n.user_id = sessions.user_id AND n.game_name = sessions.game_name AND n.end_time IS NULL
	)) - julianday(start_time)) * 1440) AS INTEGER))
WHERE end_time IS NULL AND id <> (
	SELECT n.id FROM sessions n
	WHERE n.user_id = sessions.user_id AND n.game_name = sessions.game_name AND n.end_time IS NULL
	ORDER BY n.start_time DESC, n.id DESC
	LIMIT 1
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_open ON sessions(user_id, game_name) WHERE end_time IS NULL;
`

const memberSnapshotsSchema = `
CREATE TABLE IF NOT EXISTS member_snapshots (
	id             INTEGER PRIMARY KEY,
	ts             TEXT NOT NULL,
	total_members  INTEGER NOT NULL,
	online_members INTEGER NOT NULL,
	event_id       INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_member_snapshots_event_ts ON member_snapshots(event_id, ts);
`

const gameSnapshotsSchema = `
CREATE TABLE IF NOT EXISTS game_snapshots (
	id           INTEGER PRIMARY KEY,
	ts           TEXT NOT NULL,
	game_name    TEXT NOT NULL,
	player_count INTEGER NOT NULL,
	event_id     INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_game_snapshots_event_ts ON game_snapshots(event_id, ts);
`

const metadataSchema = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
