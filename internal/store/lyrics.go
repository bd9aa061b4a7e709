package store

import (
	"context"
	"strings"
	"time"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/music"
	"github.com/justestif/go-music-agent/internal/search"
)

const lyricColumns = `id, track_id, track_uri, title, artists, album, fragment, normalized, created_at`

// AddLyricPattern remembers a lyric fragment for a track. Adding the same
// normalized fragment for the same track again refreshes the raw text.
func (s *Store) AddLyricPattern(ctx context.Context, track music.TrackReference, fragment string) (LyricPattern, error) {
	fragment = strings.TrimSpace(fragment)
	normalized := search.Normalize(fragment)
	switch {
	case track.ID == "":
		return LyricPattern{}, apperr.Invalid("store.AddLyricPattern", "track has no id")
	case normalized == "":
		return LyricPattern{}, apperr.Invalid("store.AddLyricPattern", "lyric fragment is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		INSERT INTO lyric_patterns (track_id, track_uri, title, artists, album, fragment, normalized, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (track_id, normalized) DO UPDATE SET fragment = excluded.fragment
		RETURNING `+lyricColumns),
		track.ID, track.URI, track.Title, encodeArtists(track.Artists), track.Album,
		fragment, normalized, nanos(time.Now()))
	p, err := scanLyric(row)
	if err != nil {
		return LyricPattern{}, dbError("adding lyric pattern", err)
	}
	return p, nil
}

// LyricPatterns returns every stored fragment, newest first.
func (s *Store) LyricPatterns(ctx context.Context) ([]LyricPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+lyricColumns+` FROM lyric_patterns ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, dbError("listing lyric patterns", err)
	}
	defer rows.Close()

	var patterns []LyricPattern
	for rows.Next() {
		p, err := scanLyric(rows)
		if err != nil {
			return nil, dbError("scanning lyric pattern", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("listing lyric patterns", err)
	}
	return patterns, nil
}

// SearchLyrics returns the stored fragments matching query, most specific
// first.
func (s *Store) SearchLyrics(ctx context.Context, query string) ([]LyricPattern, error) {
	patterns, err := s.LyricPatterns(ctx)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]int64, len(patterns))
	candidates := make([]search.LyricCandidate, len(patterns))
	for i, p := range patterns {
		ids[lyricKey(p.Track.ID, p.Normalized)] = p.ID
		candidates[i] = search.LyricCandidate{
			Track:      p.Track,
			Fragment:   p.Fragment,
			Normalized: p.Normalized,
			CreatedAt:  p.CreatedAt,
		}
	}

	var out []LyricPattern
	for _, m := range search.MatchLyrics(query, candidates) {
		out = append(out, LyricPattern{
			ID:         ids[lyricKey(m.Track.ID, m.Normalized)],
			Track:      m.Track,
			Fragment:   m.Fragment,
			Normalized: m.Normalized,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out, nil
}

func lyricKey(trackID, normalized string) string {
	return trackID + "\x00" + normalized
}

func scanLyric(r rowScanner) (LyricPattern, error) {
	var (
		p         LyricPattern
		artists   string
		createdAt int64
	)
	if err := r.Scan(&p.ID, &p.Track.ID, &p.Track.URI, &p.Track.Title, &artists,
		&p.Track.Album, &p.Fragment, &p.Normalized, &createdAt); err != nil {
		return LyricPattern{}, err
	}
	p.Track.Artists = decodeArtists(artists)
	p.CreatedAt = fromNanos(createdAt)
	return p, nil
}
