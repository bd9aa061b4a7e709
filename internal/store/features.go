package store

import (
	"context"
	"time"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/music"
)

// SaveFeatures caches the audio features of a track.
func (s *Store) SaveFeatures(ctx context.Context, f music.AudioFeatures) error {
	if f.TrackID == "" {
		return apperr.Invalid("store.SaveFeatures", "features have no track id")
	}
	_, err := s.exec(ctx, "saving audio features", `
		INSERT INTO track_features (track_id, energy, valence, danceability, acousticness, tempo, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (track_id) DO UPDATE SET
			energy = excluded.energy,
			valence = excluded.valence,
			danceability = excluded.danceability,
			acousticness = excluded.acousticness,
			tempo = excluded.tempo,
			updated_at = excluded.updated_at`,
		f.TrackID, f.Energy, f.Valence, f.Danceability, f.Acousticness, f.Tempo, nanos(time.Now()))
	return err
}

// RecentFeatures returns the cached features of the last limit distinct
// tracks played. Tracks without cached features are skipped.
func (s *Store) RecentFeatures(ctx context.Context, limit int) ([]music.AudioFeatures, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT f.track_id, f.energy, f.valence, f.danceability, f.acousticness, f.tempo
		FROM track_features f
		JOIN (
			SELECT track_id, MAX(played_at) AS last_played
			FROM play_history
			GROUP BY track_id
			ORDER BY last_played DESC
			LIMIT ?
		) recent ON recent.track_id = f.track_id
		ORDER BY recent.last_played DESC`), limit)
	if err != nil {
		return nil, dbError("listing recent features", err)
	}
	defer rows.Close()

	var out []music.AudioFeatures
	for rows.Next() {
		var f music.AudioFeatures
		if err := rows.Scan(&f.TrackID, &f.Energy, &f.Valence, &f.Danceability, &f.Acousticness, &f.Tempo); err != nil {
			return nil, dbError("scanning features", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("listing recent features", err)
	}
	return out, nil
}
