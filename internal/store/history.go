package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/music"
)

const historyColumns = `h.id, h.track_id, h.track_uri, h.title, h.artists, h.artist_id, h.album,
	h.duration_ms, h.release_year, h.trigger_source, h.played_at`

// latestPlays selects the most recent history row of each distinct track.
const latestPlays = `
	FROM play_history h
	JOIN (SELECT track_id, MAX(id) AS id FROM play_history GROUP BY track_id) latest
		ON latest.id = h.id`

// RecordPlay appends a history entry. When the track's primary artist is a
// favorite, its play count is incremented in the same transaction.
func (s *Store) RecordPlay(ctx context.Context, track music.TrackReference, trigger music.Trigger) (PlayHistoryEntry, error) {
	if track.ID == "" {
		return PlayHistoryEntry{}, apperr.Invalid("store.RecordPlay", "track has no id")
	}
	entry := PlayHistoryEntry{Track: track, Trigger: trigger, PlayedAt: time.Now()}

	err := s.withTx(ctx, "recording play", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.dialect.rebind(`
			INSERT INTO play_history (track_id, track_uri, title, artists, artist_id, album,
				duration_ms, release_year, trigger_source, played_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			track.ID, track.URI, track.Title, encodeArtists(track.Artists), track.ArtistID,
			track.Album, track.Duration.Milliseconds(), track.Year, string(trigger),
			nanos(entry.PlayedAt))
		if err := row.Scan(&entry.ID); err != nil {
			return err
		}

		if track.ArtistID == "" {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			s.dialect.rebind(`UPDATE favorites SET play_count = play_count + 1 WHERE artist_id = ?`),
			track.ArtistID)
		return err
	})
	if err != nil {
		return PlayHistoryEntry{}, err
	}
	return entry, nil
}

// RecentPlays returns up to limit entries, newest first.
func (s *Store) RecentPlays(ctx context.Context, limit int) ([]PlayHistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM play_history h
		ORDER BY h.played_at DESC, h.id DESC LIMIT ?`
	return s.queryHistory(ctx, "listing recent plays", query, limit)
}

// PlayCount returns the number of history entries.
func (s *Store) PlayCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM play_history`).Scan(&n); err != nil {
		return 0, dbError("counting plays", err)
	}
	return n, nil
}

// PlayedTracks returns the latest play of every distinct track, most
// recently played first.
func (s *Store) PlayedTracks(ctx context.Context) ([]PlayHistoryEntry, error) {
	query := `SELECT ` + historyColumns + latestPlays + ` ORDER BY h.played_at DESC`
	return s.queryHistory(ctx, "listing played tracks", query)
}

// UntaggedTracks returns up to limit played tracks that have no tags of
// their own and whose primary artist has none either.
func (s *Store) UntaggedTracks(ctx context.Context, limit int) ([]music.TrackReference, error) {
	query := `SELECT ` + historyColumns + latestPlays + `
		WHERE NOT EXISTS (
			SELECT 1 FROM tags t WHERE t.subject_kind = 'track' AND t.subject_id = h.track_id
		) AND NOT EXISTS (
			SELECT 1 FROM tags t WHERE t.subject_kind = 'artist' AND t.subject_id = h.artist_id
		)
		ORDER BY h.played_at DESC LIMIT ?`
	entries, err := s.queryHistory(ctx, "listing untagged tracks", query, limit)
	if err != nil {
		return nil, err
	}
	tracks := make([]music.TrackReference, len(entries))
	for i, e := range entries {
		tracks[i] = e.Track
	}
	return tracks, nil
}

func (s *Store) queryHistory(ctx context.Context, op, query string, args ...any) ([]PlayHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, dbError(op, err)
	}
	defer rows.Close()

	var entries []PlayHistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, dbError(op, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(op, err)
	}
	return entries, nil
}

func scanHistory(r rowScanner) (PlayHistoryEntry, error) {
	var (
		e                  PlayHistoryEntry
		artists, trigger   string
		durationMs, played int64
		year               int64
	)
	if err := r.Scan(&e.ID, &e.Track.ID, &e.Track.URI, &e.Track.Title, &artists,
		&e.Track.ArtistID, &e.Track.Album, &durationMs, &year, &trigger, &played); err != nil {
		return PlayHistoryEntry{}, err
	}
	e.Track.Artists = decodeArtists(artists)
	e.Track.Duration = time.Duration(durationMs) * time.Millisecond
	e.Track.Year = int(year)
	e.Trigger = music.Trigger(trigger)
	e.PlayedAt = fromNanos(played)
	return e, nil
}
