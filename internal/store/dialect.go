package store

import (
	"strconv"
	"strings"
)

// dialect captures the few differences between the two backends: driver
// name, placeholder syntax and column types in the schema.
type dialect string

const (
	sqliteDialect   dialect = "sqlite"
	postgresDialect dialect = "postgres"
)

func dialectFor(dsn string) dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgresDialect
	}
	return sqliteDialect
}

func (d dialect) driver() string {
	if d == postgresDialect {
		return "pgx"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL. Queries in
// this package never contain a literal question mark.
func (d dialect) rebind(query string) string {
	if d != postgresDialect || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) schema() []string {
	types := map[string]string{
		"{{serial}}": "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{real}}":   "REAL",
		"{{int64}}":  "INTEGER",
	}
	if d == postgresDialect {
		types = map[string]string{
			"{{serial}}": "BIGSERIAL PRIMARY KEY",
			"{{real}}":   "DOUBLE PRECISION",
			"{{int64}}":  "BIGINT",
		}
	}

	stmts := make([]string, len(schema))
	for i, stmt := range schema {
		for k, v := range types {
			stmt = strings.ReplaceAll(stmt, k, v)
		}
		stmts[i] = stmt
	}
	return stmts
}

// schema is applied in order on every Open. Timestamps are Unix
// nanoseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS favorites (
		artist_id  TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		play_count {{int64}} NOT NULL DEFAULT 0,
		liked_at   {{int64}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id           {{serial}},
		subject_id   TEXT NOT NULL,
		subject_kind TEXT NOT NULL,
		subject_name TEXT NOT NULL DEFAULT '',
		tag          TEXT NOT NULL,
		category     TEXT NOT NULL,
		confidence   {{real}} NOT NULL,
		source       TEXT NOT NULL,
		tagged_at    {{int64}} NOT NULL,
		UNIQUE (subject_id, subject_kind, tag)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags (tag, tagged_at)`,
	`CREATE TABLE IF NOT EXISTS play_history (
		id             {{serial}},
		track_id       TEXT NOT NULL,
		track_uri      TEXT NOT NULL DEFAULT '',
		title          TEXT NOT NULL,
		artists        TEXT NOT NULL,
		artist_id      TEXT NOT NULL DEFAULT '',
		album          TEXT NOT NULL DEFAULT '',
		duration_ms    {{int64}} NOT NULL DEFAULT 0,
		release_year   {{int64}} NOT NULL DEFAULT 0,
		trigger_source TEXT NOT NULL,
		played_at      {{int64}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_play_history_track ON play_history (track_id)`,
	`CREATE INDEX IF NOT EXISTS idx_play_history_played_at ON play_history (played_at)`,
	`CREATE TABLE IF NOT EXISTS lyric_patterns (
		id         {{serial}},
		track_id   TEXT NOT NULL,
		track_uri  TEXT NOT NULL DEFAULT '',
		title      TEXT NOT NULL,
		artists    TEXT NOT NULL,
		album      TEXT NOT NULL DEFAULT '',
		fragment   TEXT NOT NULL,
		normalized TEXT NOT NULL,
		created_at {{int64}} NOT NULL,
		UNIQUE (track_id, normalized)
	)`,
	`CREATE TABLE IF NOT EXISTS preferences (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at {{int64}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS playlists (
		playlist_id TEXT PRIMARY KEY,
		uri         TEXT NOT NULL,
		name        TEXT NOT NULL,
		track_count {{int64}} NOT NULL DEFAULT 0,
		synced_at   {{int64}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS track_features (
		track_id     TEXT PRIMARY KEY,
		energy       {{real}} NOT NULL,
		valence      {{real}} NOT NULL,
		danceability {{real}} NOT NULL,
		acousticness {{real}} NOT NULL,
		tempo        {{real}} NOT NULL,
		updated_at   {{int64}} NOT NULL
	)`,
}
