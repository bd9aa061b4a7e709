package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/justestif/go-music-agent/internal/music"
)

// UpsertPlaylists caches the given playlists, replacing rows with the same
// id.
func (s *Store) UpsertPlaylists(ctx context.Context, playlists []music.Playlist) error {
	if len(playlists) == 0 {
		return nil
	}
	now := nanos(time.Now())

	return s.withTx(ctx, "caching playlists", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`
			INSERT INTO playlists (playlist_id, uri, name, track_count, synced_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (playlist_id) DO UPDATE SET
				uri = excluded.uri,
				name = excluded.name,
				track_count = excluded.track_count,
				synced_at = excluded.synced_at`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range playlists {
			if p.ID == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, p.ID, p.URI, p.Name, p.TrackCount, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListPlaylists returns the cached playlists sorted by name.
func (s *Store) ListPlaylists(ctx context.Context) ([]music.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT playlist_id, uri, name, track_count FROM playlists ORDER BY name`)
	if err != nil {
		return nil, dbError("listing playlists", err)
	}
	defer rows.Close()

	var out []music.Playlist
	for rows.Next() {
		var (
			p     music.Playlist
			count int64
		)
		if err := rows.Scan(&p.ID, &p.URI, &p.Name, &count); err != nil {
			return nil, dbError("scanning playlist", err)
		}
		p.TrackCount = int(count)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("listing playlists", err)
	}
	return out, nil
}
